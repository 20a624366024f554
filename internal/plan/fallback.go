package plan

import (
	"math"

	"github.com/maauso/autoedit/internal/audio"
)

// Silence bounds for the fallback plan, in seconds.
const (
	MinRemovableSilenceSec = 0.6
	MaxRemovableSilenceSec = 30.0
	// DefaultHookSec is the preferred fallback hook length.
	DefaultHookSec = 4.0
)

// SilencePlan builds the deterministic plan for a video of durationSec
// seconds: silences within the removable bounds are removed, the
// complement is kept and the hook opens the first keep segment long
// enough to hold MinHookSec.
func SilencePlan(silences []audio.Interval, durationSec float64) *EditPlan {
	p := &EditPlan{
		Source: SourceSilence,
		Notes:  "silence-based fallback",
	}

	var removes []Segment
	for _, s := range silences {
		seg := Segment{Start: math.Max(s.Start, 0), End: math.Min(s.End, durationSec)}
		d := seg.Duration()
		if d < MinRemovableSilenceSec-Epsilon || d > MaxRemovableSilenceSec+Epsilon {
			continue
		}
		removes = append(removes, seg)
	}
	SortByStart(removes)
	p.RemoveSegments = removes

	cursor := 0.0
	for _, r := range removes {
		if r.Start > cursor {
			p.KeepSegments = append(p.KeepSegments, Segment{Start: cursor, End: r.Start})
		}
		cursor = math.Max(cursor, r.End)
	}
	if cursor < durationSec {
		p.KeepSegments = append(p.KeepSegments, Segment{Start: cursor, End: durationSec})
	}

	p.Hook = fallbackHook(p.KeepSegments, durationSec)
	return p
}

func fallbackHook(keeps []Segment, durationSec float64) Segment {
	for _, k := range keeps {
		if k.Duration() >= MinHookSec-Epsilon {
			return Segment{Start: k.Start, End: k.Start + math.Min(DefaultHookSec, k.Duration())}
		}
	}
	return Segment{Start: 0, End: math.Min(DefaultHookSec, durationSec)}
}
