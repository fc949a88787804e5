package segment

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	name      string
	recency   int
	frequency int
	monetary  float64
}

var profiles = []profile{
	{name: "loyal", recency: 5, frequency: 50, monetary: 5000},
	{name: "lost", recency: 300, frequency: 1, monetary: 20},
	{name: "new", recency: 3, frequency: 1, monetary: 30},
	{name: "atrisk", recency: 150, frequency: 20, monetary: 1500},
}

// groupedCustomers builds perGroup customers around each profile with small
// deterministic jitter.
func groupedCustomers(perGroup int) []model.Customer {
	var out []model.Customer
	for _, p := range profiles {
		for i := 0; i < perGroup; i++ {
			out = append(out, model.Customer{
				ID:        fmt.Sprintf("%s-%02d", p.name, i),
				Recency:   p.recency + i,
				Frequency: p.frequency + i%2,
				Monetary:  p.monetary + float64(i)*3.5,
			})
		}
	}
	return out
}

func newSegmenter(t *testing.T, mutate func(*Config)) *Segmenter {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestSegment_LabelsFollowBehavior(t *testing.T) {
	customers := groupedCustomers(5)

	result, err := newSegmenter(t, nil).Segment(context.Background(), customers)
	require.NoError(t, err)
	require.Len(t, result.Customers, len(customers))

	want := map[string]string{
		"loyal":  "Loyal Customers",
		"lost":   "Lost Customers",
		"new":    "New Customers",
		"atrisk": "At-Risk Customers",
	}
	for _, c := range result.Customers {
		group := c.ID[:len(c.ID)-3]
		assert.Equal(t, want[group], c.SegmentLabel, "customer %s", c.ID)
	}
}

func TestSegment_IDsAndLabelsConsistent(t *testing.T) {
	for k := 1; k <= model.NumSegments; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			s := newSegmenter(t, func(c *Config) { c.Clusters = k })

			result, err := s.Segment(context.Background(), groupedCustomers(4))
			require.NoError(t, err)

			seen := map[int]bool{}
			for _, c := range result.Customers {
				assert.GreaterOrEqual(t, c.Segment, 0)
				assert.Less(t, c.Segment, k)
				assert.Equal(t, model.SegmentLabel(c.Segment), c.SegmentLabel)
				require.NoError(t, c.Validate(model.StageSegmented))
				seen[c.Segment] = true
			}
			assert.Len(t, seen, k)
		})
	}
}

func TestSegment_SingleClusterIsLoyal(t *testing.T) {
	s := newSegmenter(t, func(c *Config) { c.Clusters = 1 })

	result, err := s.Segment(context.Background(), groupedCustomers(2))
	require.NoError(t, err)
	for _, c := range result.Customers {
		assert.Equal(t, model.SegmentLoyal, c.Segment)
	}
	assert.Len(t, result.Summaries, 1)
}

func TestSegment_Deterministic(t *testing.T) {
	customers := groupedCustomers(6)

	first, err := newSegmenter(t, nil).Segment(context.Background(), customers)
	require.NoError(t, err)
	second, err := newSegmenter(t, nil).Segment(context.Background(), customers)
	require.NoError(t, err)

	assert.Equal(t, first.Customers, second.Customers)
	assert.Equal(t, first.Inertia, second.Inertia)
}

func TestSegment_PreservesInputAndOrder(t *testing.T) {
	customers := groupedCustomers(3)
	before := make([]model.Customer, len(customers))
	copy(before, customers)

	result, err := newSegmenter(t, nil).Segment(context.Background(), customers)
	require.NoError(t, err)

	assert.Equal(t, before, customers)
	for i, c := range result.Customers {
		assert.Equal(t, before[i].ID, c.ID)
		assert.Equal(t, before[i].Recency, c.Recency)
		assert.Equal(t, before[i].Frequency, c.Frequency)
		assert.Equal(t, before[i].Monetary, c.Monetary)
	}
}

func TestSegment_Summaries(t *testing.T) {
	result, err := newSegmenter(t, nil).Segment(context.Background(), groupedCustomers(5))
	require.NoError(t, err)

	require.Len(t, result.Summaries, model.NumSegments)
	total := 0
	for i, sum := range result.Summaries {
		assert.Equal(t, i, sum.Segment)
		assert.Equal(t, model.SegmentLabel(i), sum.Label)
		assert.Equal(t, 5, sum.Customers)
		total += sum.Customers
	}
	assert.Equal(t, 20, total)

	loyal := result.Summaries[model.SegmentLoyal]
	assert.InDelta(t, 50.4, loyal.MeanFrequency, 1e-9)
	assert.InDelta(t, 7, loyal.MeanRecency, 1e-9)
	assert.Greater(t, result.Inertia, 0.0)
}

func TestSegment_IdenticalCustomers(t *testing.T) {
	customers := []model.Customer{
		{ID: "a", Recency: 1, Frequency: 1, Monetary: 10},
		{ID: "b", Recency: 1, Frequency: 1, Monetary: 10},
		{ID: "c", Recency: 1, Frequency: 1, Monetary: 10},
	}
	s := newSegmenter(t, func(c *Config) { c.Clusters = 2 })

	result, err := s.Segment(context.Background(), customers)
	require.NoError(t, err)
	for _, c := range result.Customers {
		assert.Equal(t, model.SegmentLoyal, c.Segment)
	}
	assert.Zero(t, result.Inertia)
}

func TestSegment_InsufficientRows(t *testing.T) {
	customers := groupedCustomers(1)[:3]

	_, err := newSegmenter(t, nil).Segment(context.Background(), customers)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInsufficientRows)
}

func TestSegment_ReportsRestarts(t *testing.T) {
	var calls []int
	s := newSegmenter(t, func(c *Config) {
		c.Restarts = 3
		c.OnRestart = func(done, total int) {
			assert.Equal(t, 3, total)
			calls = append(calls, done)
		}
	})

	_, err := s.Segment(context.Background(), groupedCustomers(2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestSegment_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSegmenter(t, nil).Segment(ctx, groupedCustomers(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "zero clusters", mutate: func(c *Config) { c.Clusters = 0 }},
		{name: "too many clusters", mutate: func(c *Config) { c.Clusters = model.NumSegments + 1 }},
		{name: "no restarts", mutate: func(c *Config) { c.Restarts = 0 }},
		{name: "no iterations", mutate: func(c *Config) { c.MaxIterations = 0 }},
		{name: "negative tolerance", mutate: func(c *Config) { c.Tolerance = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestAssignLabels(t *testing.T) {
	tests := []struct {
		name      string
		centroids [][]float64
		want      []int
	}{
		{
			name: "four behaviors in shuffled order",
			centroids: [][]float64{
				{1.5, -0.8, -0.8},  // long gone
				{-0.9, -0.8, -0.8}, // first purchase
				{-0.9, 1.6, 1.7},   // frequent big spender
				{0.3, 0.1, -0.1},   // slipping
			},
			want: []int{model.SegmentLost, model.SegmentNew, model.SegmentLoyal, model.SegmentAtRisk},
		},
		{
			name:      "two clusters use the first two labels",
			centroids: [][]float64{{1, -1, -1}, {-1, 1, 1}},
			want:      []int{model.SegmentAtRisk, model.SegmentLoyal},
		},
		{
			name:      "ties go to lowest cluster",
			centroids: [][]float64{{0, 0, 0}, {0, 0, 0}},
			want:      []int{model.SegmentLoyal, model.SegmentAtRisk},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assignLabels(tt.centroids))
		})
	}
}

func TestScaler_ZeroVariance(t *testing.T) {
	rows := [][]float64{{1, 5, 2}, {3, 5, 4}}

	scaled := fitScaler(rows).transform(rows)
	assert.Equal(t, []float64{-1, 0, -1}, scaled[0])
	assert.Equal(t, []float64{1, 0, 1}, scaled[1])
}
