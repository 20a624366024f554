// Package plan builds the cut plan of a video: the hook, the spans to keep
// and the final render-order segments. Plans come from the oracle when it
// returns a valid one and from silence detection otherwise.
package plan

import (
	"math"
	"slices"
)

// Epsilon absorbs float rounding in timestamp comparisons.
const Epsilon = 1e-6

// Segment is a span of the original timeline in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Valid reports whether 0 <= Start < End.
func (s Segment) Valid() bool {
	return s.Start >= 0 && s.Start < s.End && !math.IsNaN(s.Start) && !math.IsNaN(s.End)
}

// Intersect returns the overlap of s and o.
func (s Segment) Intersect(o Segment) (Segment, bool) {
	out := Segment{Start: math.Max(s.Start, o.Start), End: math.Min(s.End, o.End)}
	return out, out.Start < out.End
}

// Total returns the summed duration of segs.
func Total(segs []Segment) float64 {
	var sum float64
	for _, s := range segs {
		sum += s.Duration()
	}
	return sum
}

// SortByStart sorts segs in place by start, then end.
func SortByStart(segs []Segment) {
	slices.SortStableFunc(segs, func(a, b Segment) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		switch {
		case a.End < b.End:
			return -1
		case a.End > b.End:
			return 1
		}
		return 0
	})
}
