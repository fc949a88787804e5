package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rfm-flow/internal/common"
)

// ExpectedSchemaVersion is the bookkeeping schema this build writes. The rfm
// table sits outside it because every stage recreates it.
const ExpectedSchemaVersion = 2

// Migration is one numbered step of the bookkeeping schema.
type Migration struct {
	Description string
	statements  []string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "pipeline run log",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS pipeline_runs (
				id TEXT PRIMARY KEY,
				stage TEXT NOT NULL,
				status TEXT NOT NULL,
				rows INTEGER NOT NULL DEFAULT 0,
				message TEXT NOT NULL DEFAULT '',
				started_at DATETIME NOT NULL,
				finished_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at)`,
		},
	},
	{
		Version:     2,
		Description: "checkpoint metadata",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
				id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL,
				description TEXT,
				file_size INTEGER,
				row_counts TEXT,
				schema_version INTEGER,
				is_auto BOOLEAN DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_checkpoint_metadata_created_at ON checkpoint_metadata(created_at)`,
		},
	},
}

// apply runs the step and stamps its version inside one transaction.
func (m Migration) apply(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to stamp schema version %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion reports the version stamped in the database file.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// PendingMigrations lists the steps Migrate would apply.
func (s *SQLiteStorage) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current > ExpectedSchemaVersion {
		return nil, fmt.Errorf("%w: database is at version %d, this build knows %d",
			common.ErrSchemaMismatch, current, ExpectedSchemaVersion)
	}

	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrate brings the bookkeeping schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	pending, err := s.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := m.apply(ctx, s.db); err != nil {
			return err
		}
		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}
	return nil
}
