// Package segment groups customers into behavioral segments by clustering
// their standardized RFM metrics.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
)

// Config controls clustering.
type Config struct {
	// OnRestart, when set, is called after each completed restart.
	OnRestart     func(done, total int)
	Clusters      int
	Restarts      int
	MaxIterations int
	Tolerance     float64
	Seed          uint64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Clusters:      model.NumSegments,
		Restarts:      10,
		MaxIterations: 300,
		Tolerance:     1e-4,
		Seed:          42,
	}
}

// Result is the outcome of a segmentation run.
type Result struct {
	Customers  []model.Customer
	Summaries  []model.SegmentSummary
	Inertia    float64
	Iterations int
}

// Segmenter assigns segment ids and labels to customers.
type Segmenter struct {
	config Config
}

// New creates a segmenter, rejecting settings clustering cannot honor.
func New(config Config) (*Segmenter, error) {
	switch {
	case config.Clusters < 1 || config.Clusters > model.NumSegments:
		return nil, fmt.Errorf("%w: clusters must be between 1 and %d, got %d",
			common.ErrInvalidConfig, model.NumSegments, config.Clusters)
	case config.Restarts < 1:
		return nil, fmt.Errorf("%w: restarts must be positive", common.ErrInvalidConfig)
	case config.MaxIterations < 1:
		return nil, fmt.Errorf("%w: max iterations must be positive", common.ErrInvalidConfig)
	case config.Tolerance < 0 || math.IsNaN(config.Tolerance):
		return nil, fmt.Errorf("%w: tolerance cannot be negative", common.ErrInvalidConfig)
	}
	return &Segmenter{config: config}, nil
}

// Segment returns copies of customers with Segment and SegmentLabel set, in
// input order. The same input and seed always yield the same assignment.
func (s *Segmenter) Segment(ctx context.Context, customers []model.Customer) (Result, error) {
	k := s.config.Clusters
	if len(customers) < k {
		return Result{}, fmt.Errorf("%w: %d customers cannot form %d clusters",
			common.ErrInsufficientRows, len(customers), k)
	}

	raw := features(customers)
	points := fitScaler(raw).transform(raw)

	km := &kmeans{
		rng:           rand.New(rand.NewPCG(s.config.Seed, s.config.Seed)),
		k:             k,
		maxIterations: s.config.MaxIterations,
		tolerance:     s.config.Tolerance,
	}

	var best clustering
	for restart := 0; restart < s.config.Restarts; restart++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		run := km.run(points)
		if restart == 0 || run.inertia < best.inertia {
			best = run
		}
		slog.Debug("k-means restart finished",
			"restart", restart+1,
			"inertia", run.inertia,
			"iterations", run.iterations)

		if s.config.OnRestart != nil {
			s.config.OnRestart(restart+1, s.config.Restarts)
		}
	}

	mapping := assignLabels(centroids(points, best.assignment, k))

	out := make([]model.Customer, len(customers))
	for i, c := range customers {
		out[i] = c.WithSegment(mapping[best.assignment[i]])
	}

	slog.Info("Segmented customers",
		"customers", len(out),
		"clusters", k,
		"inertia", best.inertia)

	return Result{
		Customers:  out,
		Summaries:  Summarize(out),
		Inertia:    best.inertia,
		Iterations: best.iterations,
	}, nil
}

// Summarize reports the size and mean raw metrics of every segment present in
// customers, ordered by segment id.
func Summarize(customers []model.Customer) []model.SegmentSummary {
	var sums [model.NumSegments]model.SegmentSummary
	for i := range customers {
		c := &customers[i]
		if c.Segment < 0 || c.Segment >= model.NumSegments {
			continue
		}
		sum := &sums[c.Segment]
		sum.Customers++
		sum.MeanRecency += float64(c.Recency)
		sum.MeanFrequency += float64(c.Frequency)
		sum.MeanMonetary += c.Monetary
	}

	var out []model.SegmentSummary
	for segment, sum := range sums {
		if sum.Customers == 0 {
			continue
		}
		n := float64(sum.Customers)
		out = append(out, model.SegmentSummary{
			Segment:       segment,
			Label:         model.SegmentLabel(segment),
			Customers:     sum.Customers,
			MeanRecency:   sum.MeanRecency / n,
			MeanFrequency: sum.MeanFrequency / n,
			MeanMonetary:  sum.MeanMonetary / n,
		})
	}
	return out
}
