package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/google/uuid"
)

// StartRun records the start of a stage invocation.
func (s *SQLiteStorage) StartRun(ctx context.Context, stage string) (*model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(stage, "stage"); err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:        uuid.NewString(),
		Stage:     stage,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	return run, nil
}

// FinishRun marks run as succeeded, or failed with runErr's message.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *model.Run, rows int, runErr error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Rows = rows
	run.Status = model.RunStatusSucceeded
	run.Message = ""
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Message = runErr.Error()
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, rows = ?, message = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Rows, run.Message, finished, run.ID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		slog.Warn("finished run was never started", "run_id", run.ID)
	}

	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, stage, status, rows, message, started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var runs []model.Run
	for rows.Next() {
		var (
			run      model.Run
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Stage, &status, &run.Rows, &run.Message, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = model.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
