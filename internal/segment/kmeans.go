package segment

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// clustering is the outcome of one k-means run.
type clustering struct {
	centers    [][]float64
	assignment []int
	inertia    float64
	iterations int
}

type kmeans struct {
	rng           *rand.Rand
	k             int
	maxIterations int
	tolerance     float64
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// nearest returns the index of the closest center and its squared distance.
// Ties go to the lowest index.
func nearest(point []float64, centers [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(point, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// seed picks initial centers with k-means++: the first uniformly, each next
// one with probability proportional to its squared distance from the closest
// center chosen so far.
func (km *kmeans) seed(points [][]float64) [][]float64 {
	centers := make([][]float64, 0, km.k)
	centers = append(centers, clone(points[km.rng.IntN(len(points))]))

	dists := make([]float64, len(points))
	for len(centers) < km.k {
		total := 0.0
		for i, p := range points {
			_, dists[i] = nearest(p, centers)
			total += dists[i]
		}

		// Every point coincides with a center; fall back to a uniform pick.
		if total == 0 {
			centers = append(centers, clone(points[km.rng.IntN(len(points))]))
			continue
		}

		target := km.rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dists {
			target -= d
			if target < 0 {
				chosen = i
				break
			}
		}
		centers = append(centers, clone(points[chosen]))
	}
	return centers
}

// run performs one seeded Lloyd's iteration sequence.
func (km *kmeans) run(points [][]float64) clustering {
	centers := km.seed(points)
	assignment := make([]int, len(points))

	iterations := 0
	for iterations < km.maxIterations {
		iterations++
		km.assign(points, centers, assignment)

		next := km.recompute(points, centers, assignment)
		shift := 0.0
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next
		if shift <= km.tolerance {
			break
		}
	}

	inertia := km.assign(points, centers, assignment)
	return clustering{
		centers:    centers,
		assignment: assignment,
		inertia:    inertia,
		iterations: iterations,
	}
}

// assign labels each point with its nearest center and returns the inertia.
func (km *kmeans) assign(points, centers [][]float64, assignment []int) float64 {
	inertia := 0.0
	for i, p := range points {
		c, d := nearest(p, centers)
		assignment[i] = c
		inertia += d
	}
	return inertia
}

// recompute moves each center to the mean of its members. A cluster left
// empty takes over the point farthest from its own center.
func (km *kmeans) recompute(points, centers [][]float64, assignment []int) [][]float64 {
	next := make([][]float64, km.k)
	counts := make([]int, km.k)
	for c := range next {
		next[c] = make([]float64, len(points[0]))
	}
	for i, p := range points {
		floats.Add(next[assignment[i]], p)
		counts[assignment[i]]++
	}

	for c := range next {
		if counts[c] == 0 {
			continue
		}
		floats.Scale(1/float64(counts[c]), next[c])
	}

	for c := range next {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if counts[assignment[i]] < 2 {
				continue
			}
			if d := sqDist(p, centers[assignment[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			// Fewer distinct memberships than clusters; keep the old center.
			next[c] = clone(centers[c])
			continue
		}
		counts[assignment[far]]--
		assignment[far] = c
		counts[c] = 1
		next[c] = clone(points[far])
	}

	return next
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
