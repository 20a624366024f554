// Package zoom plans punch-in zooms on the original timeline, enforces
// their guardrails and remaps them onto the post-cut timeline.
package zoom

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autoedit/internal/oracle"
	"github.com/maauso/autoedit/internal/plan"
)

// Guardrails for accepted zooms.
const (
	MinDurationSec = 0.8
	MaxDurationSec = 3.0
	MinScaleIn     = 1.03
	MaxScaleIn     = 1.12
	MinScaleOut    = 1.00
	MaxScaleOut    = 1.06
	MinSpacingSec  = 1.5
)

// ErrInvalidZoomPlan is returned when any zoom violates a guardrail.
var ErrInvalidZoomPlan = errors.New("zoom: invalid zoom plan")

// Type is the zoom direction.
type Type string

const (
	TypeIn  Type = "in"
	TypeOut Type = "out"
)

// Easing is the interpolation curve of a zoom.
type Easing string

const (
	EasingLinear    Easing = "linear"
	EasingEaseInOut Easing = "easeInOut"
)

// Zoom is one scale-and-recenter window in seconds.
type Zoom struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Type   Type    `json:"type"`
	Scale  float64 `json:"scale"`
	Easing Easing  `json:"easing"`
	Reason string  `json:"reason,omitempty"`
}

// Duration returns the zoom length in seconds.
func (z Zoom) Duration() float64 {
	return z.End - z.Start
}

type zoomDTO struct {
	Start  *float64 `json:"start" validate:"required,gte=0"`
	End    *float64 `json:"end" validate:"required,gt=0"`
	Type   string   `json:"type" validate:"required,oneof=in out"`
	Scale  *float64 `json:"scale" validate:"required,gt=0"`
	Easing string   `json:"easing" validate:"required,oneof=linear easeInOut"`
	Reason string   `json:"reason" validate:"max=500"`
}

type zoomPlanDTO struct {
	Zooms []zoomDTO `json:"zooms" validate:"dive"`
}

// ParseOracleReply extracts and validates a zoom plan from an oracle reply.
// Any violation rejects the whole plan.
func ParseOracleReply(v *validator.Validate, reply string, durationSec float64) ([]Zoom, error) {
	raw, err := oracle.ExtractJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidZoomPlan, err)
	}

	var dto zoomPlanDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidZoomPlan, err)
	}
	if err := v.Struct(dto); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidZoomPlan, err)
	}

	zooms := make([]Zoom, 0, len(dto.Zooms))
	for _, d := range dto.Zooms {
		zooms = append(zooms, Zoom{
			Start:  *d.Start,
			End:    *d.End,
			Type:   Type(d.Type),
			Scale:  *d.Scale,
			Easing: Easing(d.Easing),
			Reason: d.Reason,
		})
	}

	if err := Validate(zooms, durationSec); err != nil {
		return nil, err
	}
	return zooms, nil
}

// Validate checks every zoom against the guardrails and the media
// duration, and sorts zooms by start in place.
func Validate(zooms []Zoom, durationSec float64) error {
	slices.SortStableFunc(zooms, func(a, b Zoom) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	for i, z := range zooms {
		if math.IsNaN(z.Start) || math.IsNaN(z.End) || z.Start < 0 || z.End > durationSec+plan.Epsilon {
			return fmt.Errorf("%w: zoom %d [%.3f, %.3f] outside [0, %.3f]", ErrInvalidZoomPlan, i, z.Start, z.End, durationSec)
		}
		if d := z.Duration(); d < MinDurationSec-plan.Epsilon || d > MaxDurationSec+plan.Epsilon {
			return fmt.Errorf("%w: zoom %d lasts %.3fs, want %.1f-%.1fs", ErrInvalidZoomPlan, i, d, MinDurationSec, MaxDurationSec)
		}

		lo, hi := MinScaleIn, MaxScaleIn
		switch z.Type {
		case TypeIn:
		case TypeOut:
			lo, hi = MinScaleOut, MaxScaleOut
		default:
			return fmt.Errorf("%w: zoom %d has unknown type %q", ErrInvalidZoomPlan, i, z.Type)
		}
		if z.Scale < lo-plan.Epsilon || z.Scale > hi+plan.Epsilon {
			return fmt.Errorf("%w: zoom %d %s scale %.3f outside [%.2f, %.2f]", ErrInvalidZoomPlan, i, z.Type, z.Scale, lo, hi)
		}

		if z.Easing != EasingLinear && z.Easing != EasingEaseInOut {
			return fmt.Errorf("%w: zoom %d has unknown easing %q", ErrInvalidZoomPlan, i, z.Easing)
		}

		if i > 0 {
			if gap := z.Start - zooms[i-1].End; gap < MinSpacingSec-plan.Epsilon {
				return fmt.Errorf("%w: zooms %d and %d are %.3fs apart, want >= %.1fs", ErrInvalidZoomPlan, i-1, i, gap, MinSpacingSec)
			}
		}
	}
	return nil
}

// Remap projects original-timeline zooms onto the output timeline formed
// by concatenating final in order. A zoom spanning a cut is split per
// surviving segment; a zoom inside removed footage disappears.
func Remap(final []plan.Segment, zooms []Zoom) []Zoom {
	var out []Zoom
	cursor := 0.0
	for _, seg := range final {
		for _, z := range zooms {
			is, ok := seg.Intersect(plan.Segment{Start: z.Start, End: z.End})
			if !ok {
				continue
			}
			m := z
			m.Start = cursor + (is.Start - seg.Start)
			m.End = cursor + (is.End - seg.Start)
			out = append(out, m)
		}
		cursor += seg.Duration()
	}
	return out
}
