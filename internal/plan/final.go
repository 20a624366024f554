package plan

import "math"

// Final segment assembly constants, in seconds.
const (
	// MergeGapSec is the widest gap closed when merging neighbours.
	MergeGapSec = 0.25
	// MinSegmentSec drops rounding slivers from the render list.
	MinSegmentSec = 0.05
)

// FinalSegments returns the render-order list of original-timeline spans:
// the hook followed by every keep segment clipped to start at or after the
// hook end, sorted and merged. Returns ErrNoSegmentsToRender when nothing
// survives.
func FinalSegments(p *EditPlan) ([]Segment, error) {
	segs := []Segment{p.Hook}
	for _, k := range p.KeepSegments {
		clipped := Segment{Start: math.Max(k.Start, p.Hook.End), End: k.End}
		if clipped.Start >= clipped.End {
			continue
		}
		segs = append(segs, clipped)
	}

	out := Merge(segs)
	if len(out) == 0 {
		return nil, ErrNoSegmentsToRender
	}
	return out, nil
}

// Merge sorts segs by start and joins neighbours whose gap is at most
// MergeGapSec. Overlapping segments are joined too. Invalid and
// sub-MinSegmentSec segments are dropped. The input is not modified.
func Merge(segs []Segment) []Segment {
	sorted := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if s.Valid() {
			sorted = append(sorted, s)
		}
	}
	SortByStart(sorted)

	var out []Segment
	for _, s := range sorted {
		if n := len(out); n > 0 && s.Start-out[n-1].End <= MergeGapSec+Epsilon {
			out[n-1].End = math.Max(out[n-1].End, s.End)
			continue
		}
		out = append(out, s)
	}

	kept := out[:0]
	for _, s := range out {
		if s.Duration() >= MinSegmentSec {
			kept = append(kept, s)
		}
	}
	return kept
}
