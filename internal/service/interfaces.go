// Package service defines the interfaces the pipeline stages depend on.
package service

import (
	"context"

	"github.com/Veraticus/rfm-flow/internal/model"
)

// TableInfo describes one table of the shared store.
type TableInfo struct {
	Name string
	Rows int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Customer table operations. ReplaceCustomers swaps the whole table for
	// the stage's schema; LoadCustomers fails with common.ErrSchemaMismatch
	// unless every column the required stage needs is present, and also
	// reports the widest stage the stored table satisfies.
	ReplaceCustomers(ctx context.Context, stage model.Stage, customers []model.Customer) error
	LoadCustomers(ctx context.Context, required model.Stage) ([]model.Customer, model.Stage, error)

	// Run bookkeeping
	StartRun(ctx context.Context, stage string) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run, rows int, runErr error) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Introspection
	ListTables(ctx context.Context) ([]TableInfo, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Source supplies raw transaction lines.
type Source interface {
	Read(ctx context.Context) ([]model.Transaction, error)
}

// Publisher mirrors exported rows to an external destination and returns
// where they can be found.
type Publisher interface {
	Publish(ctx context.Context, stage model.Stage, customers []model.Customer) (string, error)
}

// Checkpointer snapshots the store before it is overwritten.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, prefix string) error
}
