package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Stage identifies how far a customer row has been enriched.
// Each stage's schema is a strict superset of the previous one.
type Stage int

// Pipeline stages in the order their columns are added.
const (
	StageRFM Stage = iota + 1
	StageSegmented
	StageScored
)

// Column names of the persisted rfm table.
const (
	ColumnCustomerID   = "customer_id"
	ColumnRecency      = "recency"
	ColumnFrequency    = "frequency"
	ColumnMonetary     = "monetary"
	ColumnSegment      = "segment"
	ColumnSegmentLabel = "segment_label"
	ColumnCLVPredicted = "clv_predicted"
)

var stageColumns = map[Stage][]string{
	StageRFM: {ColumnCustomerID, ColumnRecency, ColumnFrequency, ColumnMonetary},
	StageSegmented: {ColumnCustomerID, ColumnRecency, ColumnFrequency, ColumnMonetary,
		ColumnSegment, ColumnSegmentLabel},
	StageScored: {ColumnCustomerID, ColumnRecency, ColumnFrequency, ColumnMonetary,
		ColumnSegment, ColumnSegmentLabel, ColumnCLVPredicted},
}

var stageFields = map[Stage][]string{
	StageRFM:       {"ID", "Recency", "Frequency", "Monetary"},
	StageSegmented: {"ID", "Recency", "Frequency", "Monetary", "Segment", "SegmentLabel"},
	StageScored:    {"ID", "Recency", "Frequency", "Monetary", "Segment", "SegmentLabel", "CLVPredicted"},
}

// Stages lists every stage from narrowest to widest schema.
func Stages() []Stage {
	return []Stage{StageRFM, StageSegmented, StageScored}
}

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageRFM:
		return "rfm"
	case StageSegmented:
		return "segmented"
	case StageScored:
		return "scored"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Columns returns the ordered column contract for the stage.
func (s Stage) Columns() []string {
	cols := stageColumns[s]
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageColumns[s]
	return ok
}

// Customer is one row of the rfm table. Fields beyond the RFM metrics are only
// meaningful once the corresponding stage has run.
type Customer struct {
	ID           string  `validate:"required"`
	SegmentLabel string  `validate:"segmentlabel"`
	Monetary     float64 `validate:"finite"`
	CLVPredicted float64 `validate:"finite"`
	Recency      int     `validate:"gte=0"`
	Frequency    int     `validate:"gte=1"`
	Segment      int     `validate:"gte=0,lt=4"`
}

// WithSegment returns a copy of c carrying the segment id and its label.
func (c Customer) WithSegment(segment int) Customer {
	c.Segment = segment
	c.SegmentLabel = SegmentLabel(segment)
	return c
}

// WithCLV returns a copy of c carrying the predicted lifetime value.
func (c Customer) WithCLV(predicted float64) Customer {
	c.CLVPredicted = predicted
	return c
}

// Validate checks the fields the given stage is responsible for.
func (c *Customer) Validate(stage Stage) error {
	fields, ok := stageFields[stage]
	if !ok {
		return fmt.Errorf("unknown stage %d", int(stage))
	}
	if err := customerValidate.StructPartial(c, fields...); err != nil {
		return fmt.Errorf("customer %q: %w", c.ID, err)
	}
	if stage >= StageSegmented && c.SegmentLabel != SegmentLabel(c.Segment) {
		return fmt.Errorf("customer %q: label %q does not belong to segment %d", c.ID, c.SegmentLabel, c.Segment)
	}
	return nil
}

// Values renders the row as strings in the stage's column order.
func (c *Customer) Values(stage Stage) []string {
	values := []string{
		c.ID,
		strconv.Itoa(c.Recency),
		strconv.Itoa(c.Frequency),
		FormatFloat(c.Monetary),
	}
	if stage >= StageSegmented {
		values = append(values, strconv.Itoa(c.Segment), c.SegmentLabel)
	}
	if stage >= StageScored {
		values = append(values, FormatFloat(c.CLVPredicted))
	}
	return values
}

// FormatFloat renders v with the fewest digits that parse back to the same value.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var customerValidate *validator.Validate

func init() {
	customerValidate = validator.New()
	_ = customerValidate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		v := fl.Field().Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	})
	_ = customerValidate.RegisterValidation("segmentlabel", func(fl validator.FieldLevel) bool {
		return IsSegmentLabel(fl.Field().String())
	})
}
