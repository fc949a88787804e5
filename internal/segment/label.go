package segment

import (
	"math"

	"github.com/Veraticus/rfm-flow/internal/model"
)

// labelRule scores how well a cluster centroid, in standardized recency,
// frequency, monetary space, fits one segment.
type labelRule struct {
	score   func(r, f, m float64) float64
	segment int
}

// labelPriority is the order in which segments claim a cluster.
var labelPriority = []labelRule{
	{segment: model.SegmentLoyal, score: func(r, f, m float64) float64 { return -r + f + m }},
	{segment: model.SegmentLost, score: func(r, f, m float64) float64 { return r - f - m }},
	{segment: model.SegmentNew, score: func(r, f, _ float64) float64 { return -r - f }},
	{segment: model.SegmentAtRisk, score: func(r, f, _ float64) float64 { return r + f }},
}

// assignLabels maps each cluster index to a segment id. Only the first k
// segments of the lookup are candidates. Each candidate, in priority order,
// takes the unclaimed cluster its rule scores highest; ties go to the lowest
// cluster index.
func assignLabels(centroids [][]float64) []int {
	k := len(centroids)
	mapping := make([]int, k)
	claimed := make([]bool, k)

	for _, rule := range labelPriority {
		if rule.segment >= k {
			continue
		}
		best, bestScore := -1, math.Inf(-1)
		for c, centroid := range centroids {
			if claimed[c] {
				continue
			}
			if s := rule.score(centroid[0], centroid[1], centroid[2]); best < 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		claimed[best] = true
		mapping[best] = rule.segment
	}

	return mapping
}

// centroids returns the mean feature vector of each cluster's members.
func centroids(points [][]float64, assignment []int, k int) [][]float64 {
	out := make([][]float64, k)
	counts := make([]int, k)
	for c := range out {
		out[c] = make([]float64, numFeatures)
	}
	for i, p := range points {
		c := assignment[i]
		counts[c]++
		for j := range p {
			out[c][j] += p[j]
		}
	}
	for c := range out {
		if counts[c] == 0 {
			continue
		}
		for j := range out[c] {
			out[c][j] /= float64(counts[c])
		}
	}
	return out
}
