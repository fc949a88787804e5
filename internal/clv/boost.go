package clv

import "context"

// booster is an additive ensemble of regression trees on top of a constant
// base score.
type booster struct {
	trees []*tree
	base  float64
}

// fitBooster trains on the given rows of x and y. onRound is called after
// each tree is added.
func fitBooster(ctx context.Context, x [][]float64, y []float64, rows []int, cfg Config) (*booster, error) {
	b := &booster{trees: make([]*tree, 0, cfg.Estimators)}

	for _, r := range rows {
		b.base += y[r]
	}
	b.base /= float64(len(rows))

	pred := make([]float64, len(y))
	residual := make([]float64, len(y))
	for _, r := range rows {
		pred[r] = b.base
	}

	params := treeParams{
		maxDepth:       cfg.MaxDepth,
		minSamplesLeaf: cfg.MinSamplesLeaf,
		lambda:         cfg.Lambda,
		scale:          cfg.LearningRate,
	}

	for round := 0; round < cfg.Estimators; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, r := range rows {
			residual[r] = y[r] - pred[r]
		}
		t := fitTree(x, residual, rows, params)
		b.trees = append(b.trees, t)
		for _, r := range rows {
			pred[r] += t.predict(x[r])
		}

		if cfg.OnRound != nil {
			cfg.OnRound(round+1, cfg.Estimators)
		}
	}

	return b, nil
}

func (b *booster) predict(features []float64) float64 {
	out := b.base
	for _, t := range b.trees {
		out += t.predict(features)
	}
	return out
}
