package engine

// Segment is the coarse severity classification that drives content
// selection for segment-variant template slots.
type Segment string

const (
	SegmentCritical Segment = "CRITICAL"
	SegmentUrgent   Segment = "URGENT"
	SegmentOptimize Segment = "OPTIMIZE"
)

// slug returns the lowercase suffix used in segment-variant template slots.
func (s Segment) slug() string {
	switch s {
	case SegmentCritical:
		return "critical"
	case SegmentUrgent:
		return "urgent"
	default:
		return "optimize"
	}
}

// DiagnosticCounts holds the four severity-bucket counts from a recipient's
// latest assessment. Negative counts are rejected at the trigger boundary;
// this type assumes validated input.
type DiagnosticCounts struct {
	Critical int
	Elevated int
	Moderate int
	Nominal  int
}

// ClassifySegment maps diagnostic counts to a segment. Total and
// deterministic; rules apply in order and the first match wins.
func ClassifySegment(c DiagnosticCounts) Segment {
	switch {
	case c.Critical >= 2:
		return SegmentCritical
	case c.Critical == 1 || c.Elevated >= 2:
		return SegmentUrgent
	default:
		return SegmentOptimize
	}
}
