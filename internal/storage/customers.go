package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/Veraticus/rfm-flow/internal/service"
)

// CustomerTable is the table every stage reads from and writes to.
const CustomerTable = "rfm"

var columnDefinitions = map[string]string{
	model.ColumnCustomerID:   "TEXT PRIMARY KEY",
	model.ColumnRecency:      "INTEGER NOT NULL",
	model.ColumnFrequency:    "INTEGER NOT NULL",
	model.ColumnMonetary:     "REAL NOT NULL",
	model.ColumnSegment:      "INTEGER NOT NULL",
	model.ColumnSegmentLabel: "TEXT NOT NULL",
	model.ColumnCLVPredicted: "REAL NOT NULL",
}

func createTableSQL(stage model.Stage) string {
	cols := stage.Columns()
	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = col + " " + columnDefinitions[col]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", CustomerTable, strings.Join(defs, ", "))
}

func insertSQL(stage model.Stage) string {
	cols := stage.Columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", CustomerTable, strings.Join(cols, ", "), placeholders)
}

func customerArgs(stage model.Stage, c *model.Customer) []any {
	args := []any{c.ID, c.Recency, c.Frequency, c.Monetary}
	if stage >= model.StageSegmented {
		args = append(args, c.Segment, c.SegmentLabel)
	}
	if stage >= model.StageScored {
		args = append(args, c.CLVPredicted)
	}
	return args
}

// ReplaceCustomers drops the customer table and recreates it with exactly
// the stage's columns, in one transaction. Readers never see a partial table.
func (s *SQLiteStorage) ReplaceCustomers(ctx context.Context, stage model.Stage, customers []model.Customer) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStage(stage); err != nil {
		return err
	}
	if err := validateCustomers(stage, customers); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+CustomerTable); err != nil {
		return fmt.Errorf("failed to drop %s: %w", CustomerTable, err)
	}
	if _, err = tx.ExecContext(ctx, createTableSQL(stage)); err != nil {
		return fmt.Errorf("failed to create %s: %w", CustomerTable, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(stage))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Error("failed to close statement", "error", closeErr)
		}
	}()

	for i := range customers {
		if _, err = stmt.ExecContext(ctx, customerArgs(stage, &customers[i])...); err != nil {
			return fmt.Errorf("failed to insert customer %s: %w", customers[i].ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", CustomerTable, err)
	}

	slog.Debug("Replaced customer table", "stage", stage.String(), "rows", len(customers))
	return nil
}

// tableColumns returns the column names of table, or nil if it does not exist.
func (s *SQLiteStorage) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var columns map[string]bool
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		if columns == nil {
			columns = make(map[string]bool)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// StoredStage reports the widest stage whose columns the customer table
// carries. It fails with common.ErrSchemaMismatch when the table is absent
// or does not even hold the RFM columns.
func (s *SQLiteStorage) StoredStage(ctx context.Context) (model.Stage, error) {
	columns, err := s.tableColumns(ctx, CustomerTable)
	if err != nil {
		return 0, err
	}
	if columns == nil {
		return 0, fmt.Errorf("%w: table %s does not exist; run etl first", common.ErrSchemaMismatch, CustomerTable)
	}

	var detected model.Stage
	for _, stage := range model.Stages() {
		if len(missingColumns(columns, stage)) > 0 {
			break
		}
		detected = stage
	}
	if detected == 0 {
		return 0, fmt.Errorf("%w: table %s is missing columns %v",
			common.ErrSchemaMismatch, CustomerTable, missingColumns(columns, model.StageRFM))
	}
	return detected, nil
}

func missingColumns(columns map[string]bool, stage model.Stage) []string {
	var missing []string
	for _, col := range stage.Columns() {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// LoadCustomers checks that the customer table satisfies the required stage,
// then returns every row ordered by customer id together with the widest
// stage the table satisfies. Rows carry all of that stage's columns.
func (s *SQLiteStorage) LoadCustomers(ctx context.Context, required model.Stage) ([]model.Customer, model.Stage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, 0, err
	}
	if err := validateStage(required); err != nil {
		return nil, 0, err
	}

	columns, err := s.tableColumns(ctx, CustomerTable)
	if err != nil {
		return nil, 0, err
	}
	if columns == nil {
		return nil, 0, fmt.Errorf("%w: table %s does not exist; run etl first", common.ErrSchemaMismatch, CustomerTable)
	}
	if missing := missingColumns(columns, required); len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: table %s is missing columns %v required by the %s stage",
			common.ErrSchemaMismatch, CustomerTable, missing, required)
	}

	stage, err := s.StoredStage(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(stage.Columns(), ", "), CustomerTable, model.ColumnCustomerID)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query %s: %w", CustomerTable, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var customers []model.Customer
	for rows.Next() {
		var c model.Customer
		dest := []any{&c.ID, &c.Recency, &c.Frequency, &c.Monetary}
		if stage >= model.StageSegmented {
			dest = append(dest, &c.Segment, &c.SegmentLabel)
		}
		if stage >= model.StageScored {
			dest = append(dest, &c.CLVPredicted)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan customer: %w", err)
		}
		if err := c.Validate(stage); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidCustomer, err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", CustomerTable, err)
	}

	return customers, stage, nil
}

// ListTables returns every user table with its row count, ordered by name.
func (s *SQLiteStorage) ListTables(ctx context.Context) ([]service.TableInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close table list: %w", err)
	}

	tables := make([]service.TableInfo, 0, len(names))
	for _, name := range names {
		var count int
		// #nosec G201 - name comes from sqlite_master and is quoted
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		tables = append(tables, service.TableInfo{Name: name, Rows: count})
	}
	return tables, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
