package clv

import (
	"sort"
)

// minGain is the smallest loss reduction worth a split.
const minGain = 1e-12

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

// tree is a regression tree stored as a flat node slice rooted at index 0.
type tree struct {
	nodes []node
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	lambda         float64
	scale          float64
}

// fitTree grows a tree on the residuals of rows, using second-order gain for
// squared error: every row has unit hessian, so a node's weight is
// sum(residual) / (count + lambda). Leaf values are multiplied by scale.
func fitTree(x [][]float64, residual []float64, rows []int, params treeParams) *tree {
	t := &tree{}
	t.grow(x, residual, rows, 0, params)
	return t
}

func (t *tree) grow(x [][]float64, residual []float64, rows []int, depth int, params treeParams) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{})

	sum := 0.0
	for _, r := range rows {
		sum += residual[r]
	}

	if depth < params.maxDepth && len(rows) >= 2*params.minSamplesLeaf {
		if s, ok := bestSplit(x, residual, rows, sum, params); ok {
			var left, right []int
			for _, r := range rows {
				if x[r][s.feature] < s.threshold {
					left = append(left, r)
				} else {
					right = append(right, r)
				}
			}
			l := t.grow(x, residual, left, depth+1, params)
			rr := t.grow(x, residual, right, depth+1, params)
			t.nodes[idx] = node{feature: s.feature, threshold: s.threshold, left: l, right: rr}
			return idx
		}
	}

	t.nodes[idx] = node{leaf: true, value: params.scale * sum / (float64(len(rows)) + params.lambda)}
	return idx
}

type splitPoint struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit scans every feature for the threshold with the highest gain.
// Thresholds sit halfway between adjacent distinct values; earlier features
// and lower thresholds win ties.
func bestSplit(x [][]float64, residual []float64, rows []int, sum float64, params treeParams) (splitPoint, bool) {
	n := len(rows)
	parent := sum * sum / (float64(n) + params.lambda)

	best := splitPoint{gain: minGain}
	found := false

	sorted := make([]int, n)
	for f := range x[rows[0]] {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return x[sorted[i]][f] < x[sorted[j]][f]
		})

		leftSum := 0.0
		for i := 0; i < n-1; i++ {
			leftSum += residual[sorted[i]]
			nLeft := i + 1
			nRight := n - nLeft
			if nLeft < params.minSamplesLeaf || nRight < params.minSamplesLeaf {
				continue
			}

			lo, hi := x[sorted[i]][f], x[sorted[i+1]][f]
			if lo == hi {
				continue
			}

			rightSum := sum - leftSum
			gain := leftSum*leftSum/(float64(nLeft)+params.lambda) +
				rightSum*rightSum/(float64(nRight)+params.lambda) - parent
			if gain > best.gain {
				best = splitPoint{feature: f, threshold: lo + (hi-lo)/2, gain: gain}
				found = true
			}
		}
	}

	return best, found
}

func (t *tree) predict(features []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if features[n.feature] < n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}
