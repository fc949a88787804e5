// Package clv predicts customer lifetime value with a gradient-boosted
// regression tree ensemble.
package clv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"gonum.org/v1/gonum/floats"
)

// Config controls the train/test split and the boosted model.
type Config struct {
	// OnRound, when set, is called after each boosting round.
	OnRound        func(done, total int)
	Seed           uint64
	TestSize       float64
	Estimators     int
	MaxDepth       int
	LearningRate   float64
	MinSamplesLeaf int
	Lambda         float64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		TestSize:       0.2,
		Estimators:     100,
		MaxDepth:       6,
		LearningRate:   0.3,
		MinSamplesLeaf: 1,
		Lambda:         1,
	}
}

// Result is the outcome of an estimation run.
type Result struct {
	Customers []model.Customer
	// MSE is the mean squared error on the held-out rows.
	MSE       float64
	TrainRows int
	TestRows  int
}

// Estimator fits and applies the lifetime value model.
type Estimator struct {
	config Config
}

// New creates an estimator.
func New(config Config) (*Estimator, error) {
	switch {
	case config.TestSize <= 0 || config.TestSize >= 1:
		return nil, fmt.Errorf("%w: test size must be in (0, 1), got %g", common.ErrInvalidConfig, config.TestSize)
	case config.Estimators < 1:
		return nil, fmt.Errorf("%w: estimators must be positive", common.ErrInvalidConfig)
	case config.MaxDepth < 1:
		return nil, fmt.Errorf("%w: max depth must be positive", common.ErrInvalidConfig)
	case config.LearningRate <= 0 || config.LearningRate > 1:
		return nil, fmt.Errorf("%w: learning rate must be in (0, 1]", common.ErrInvalidConfig)
	case config.MinSamplesLeaf < 1:
		return nil, fmt.Errorf("%w: min samples per leaf must be positive", common.ErrInvalidConfig)
	case config.Lambda < 0:
		return nil, fmt.Errorf("%w: lambda cannot be negative", common.ErrInvalidConfig)
	}
	return &Estimator{config: config}, nil
}

// predictors returns recency, frequency and segment id as model inputs.
func predictors(c *model.Customer) []float64 {
	return []float64{float64(c.Recency), float64(c.Frequency), float64(c.Segment)}
}

// Estimate trains on a seeded split of customers with monetary as the target,
// then returns copies of every customer, in input order, with CLVPredicted set.
func (e *Estimator) Estimate(ctx context.Context, customers []model.Customer) (Result, error) {
	if len(customers) < 2 {
		return Result{}, fmt.Errorf("%w: need at least 2 customers to train and evaluate, got %d",
			common.ErrInsufficientRows, len(customers))
	}

	x := make([][]float64, len(customers))
	y := make([]float64, len(customers))
	for i := range customers {
		x[i] = predictors(&customers[i])
		y[i] = customers[i].Monetary
	}

	train, test := split(len(customers), e.config.TestSize, e.config.Seed)

	fit, err := fitBooster(ctx, x, y, train, e.config)
	if err != nil {
		return Result{}, err
	}

	predicted := make([]float64, len(test))
	actual := make([]float64, len(test))
	for i, r := range test {
		predicted[i] = fit.predict(x[r])
		actual[i] = y[r]
	}
	dist := floats.Distance(predicted, actual, 2)
	mse := dist * dist / float64(len(test))

	out := make([]model.Customer, len(customers))
	for i, c := range customers {
		out[i] = c.WithCLV(fit.predict(x[i]))
	}

	slog.Info("Estimated customer lifetime value",
		"customers", len(out),
		"train_rows", len(train),
		"test_rows", len(test),
		"mse", mse)

	return Result{
		Customers: out,
		MSE:       mse,
		TrainRows: len(train),
		TestRows:  len(test),
	}, nil
}
