// Package extract reads raw retail transaction lines from spreadsheet or CSV exports.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/xuri/excelize/v2"
)

// cancelCheckEvery bounds how many rows are converted between context checks.
const cancelCheckEvery = 10000

// Reader loads the raw extract from a fixed location.
type Reader struct {
	path  string
	sheet string
}

// NewReader creates a reader for the file at path. sheet selects the worksheet
// of a workbook; empty means the first sheet.
func NewReader(path, sheet string) *Reader {
	return &Reader{path: path, sheet: sheet}
}

// Path returns the location the reader expects the extract at.
func (r *Reader) Path() string {
	return r.path
}

// Read verifies the extract exists and returns one transaction per data row,
// in source order.
func (r *Reader) Read(ctx context.Context) ([]model.Transaction, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.MissingInputError(r.path)
		}
		return nil, fmt.Errorf("failed to access %s: %w", r.path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", common.ErrInvalidInput, r.path)
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close extract", "path", r.path, "error", closeErr)
		}
	}()

	switch ext := strings.ToLower(filepath.Ext(r.path)); ext {
	case ".xlsx", ".xlsm", ".xltx":
		return ParseWorkbook(ctx, f, r.sheet)
	case ".csv", ".txt":
		return ParseCSV(ctx, f)
	default:
		return nil, fmt.Errorf("%w: unsupported extract format %q", common.ErrInvalidInput, ext)
	}
}

// ParseWorkbook parses an Excel workbook. Cells are read raw so dates arrive
// as serial numbers regardless of the workbook's display format.
func ParseWorkbook(ctx context.Context, reader io.Reader, sheet string) ([]model.Transaction, error) {
	wb, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		if closeErr := wb.Close(); closeErr != nil {
			slog.Warn("failed to close workbook", "error", closeErr)
		}
	}()

	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", common.ErrInvalidInput)
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	txns, err := convertRows(ctx, rows)
	if err != nil {
		return nil, err
	}

	slog.Info("Parsed workbook", "sheet", sheet, "transactions", len(txns))
	return txns, nil
}

// ParseCSV parses a comma-delimited export with a header row.
func ParseCSV(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	txns, err := convertRows(ctx, rows)
	if err != nil {
		return nil, err
	}

	slog.Info("Parsed CSV", "transactions", len(txns))
	return txns, nil
}

func convertRows(ctx context.Context, rows [][]string) ([]model.Transaction, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: extract has no header row", common.ErrInvalidInput)
	}

	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	txns := make([]model.Transaction, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlank(row) {
			continue
		}

		txn, err := toTransaction(row, cols, i+2)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return txns, nil
}
