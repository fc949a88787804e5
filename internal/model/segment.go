package model

// Segment ids. The id is the label's position in the fixed lookup, so an id
// always means the same behavior regardless of clustering output order.
const (
	SegmentLoyal = iota
	SegmentAtRisk
	SegmentNew
	SegmentLost

	// NumSegments is the size of the label lookup and the largest supported cluster count.
	NumSegments
)

var segmentLabels = [NumSegments]string{
	SegmentLoyal:  "Loyal Customers",
	SegmentAtRisk: "At-Risk Customers",
	SegmentNew:    "New Customers",
	SegmentLost:   "Lost Customers",
}

// SegmentLabel returns the human-readable name of a segment id, or "" if the id
// is out of range.
func SegmentLabel(segment int) string {
	if segment < 0 || segment >= NumSegments {
		return ""
	}
	return segmentLabels[segment]
}

// IsSegmentLabel reports whether label is one of the fixed segment names.
func IsSegmentLabel(label string) bool {
	for _, l := range segmentLabels {
		if l == label {
			return true
		}
	}
	return false
}

// SegmentSummary describes one segment of a clustering run in original units.
type SegmentSummary struct {
	Label         string
	Segment       int
	Customers     int
	MeanRecency   float64
	MeanFrequency float64
	MeanMonetary  float64
}
