// Package export writes final customer rows to flat files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
)

// CSVWriter writes customer rows to a CSV file.
type CSVWriter struct {
	path string
}

// NewCSVWriter creates a writer targeting path. Parent directories are
// created on write.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Path returns the destination file.
func (w *CSVWriter) Path() string {
	return w.path
}

// Write replaces the destination with a header row of the stage's columns
// followed by one row per customer. The file is written to a temporary name
// and renamed into place.
func (w *CSVWriter) Write(ctx context.Context, stage model.Stage, customers []model.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp := w.path + ".tmp"
	// #nosec G304 - export path is operator configuration
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if err := WriteCSV(f, stage, customers); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	slog.Info("Exported customers", "path", w.path, "rows", len(customers), "stage", stage.String())
	return nil
}

// WriteCSV encodes customers under the stage's header. There is no index
// column; floats use the shortest form that parses back exactly.
func WriteCSV(out io.Writer, stage model.Stage, customers []model.Customer) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: unknown stage %d", common.ErrInvalidInput, int(stage))
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(stage.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range customers {
		if err := cw.Write(customers[i].Values(stage)); err != nil {
			return fmt.Errorf("failed to write customer %s: %w", customers[i].ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ReadCSV reads a file produced by Write and reports which stage its header
// matches.
func ReadCSV(path string) (model.Stage, []model.Customer, error) {
	// #nosec G304 - path is operator configuration
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close export", "path", path, "error", closeErr)
		}
	}()

	return ParseCSV(f)
}

// ParseCSV decodes an exported CSV stream.
func ParseCSV(in io.Reader) (model.Stage, []model.Customer, error) {
	records, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return 0, nil, fmt.Errorf("%w: export has no header", common.ErrSchemaMismatch)
	}

	var stage model.Stage
	for _, s := range model.Stages() {
		if slices.Equal(records[0], s.Columns()) {
			stage = s
		}
	}
	if stage == 0 {
		return 0, nil, fmt.Errorf("%w: unrecognized export header %v", common.ErrSchemaMismatch, records[0])
	}

	customers := make([]model.Customer, 0, len(records)-1)
	for i, rec := range records[1:] {
		c, err := parseRow(stage, rec)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: line %d: %v", common.ErrInvalidInput, i+2, err)
		}
		customers = append(customers, c)
	}
	return stage, customers, nil
}

func parseRow(stage model.Stage, rec []string) (model.Customer, error) {
	var (
		c   model.Customer
		err error
	)
	c.ID = rec[0]
	if c.Recency, err = strconv.Atoi(rec[1]); err != nil {
		return c, fmt.Errorf("recency: %w", err)
	}
	if c.Frequency, err = strconv.Atoi(rec[2]); err != nil {
		return c, fmt.Errorf("frequency: %w", err)
	}
	if c.Monetary, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return c, fmt.Errorf("monetary: %w", err)
	}
	if stage >= model.StageSegmented {
		if c.Segment, err = strconv.Atoi(rec[4]); err != nil {
			return c, fmt.Errorf("segment: %w", err)
		}
		c.SegmentLabel = rec[5]
	}
	if stage >= model.StageScored {
		if c.CLVPredicted, err = strconv.ParseFloat(rec[6], 64); err != nil {
			return c, fmt.Errorf("clv_predicted: %w", err)
		}
	}
	return c, nil
}
