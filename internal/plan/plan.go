package plan

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autoedit/internal/oracle"
)

// Hook length bounds in seconds.
const (
	MinHookSec = 3.0
	MaxHookSec = 5.0
)

// Static errors for edit planning.
var (
	// ErrNoSegmentsToRender is returned when no segment survives planning.
	ErrNoSegmentsToRender = errors.New("plan: no segments to render")
	// ErrInvalidPlan is returned when an oracle plan fails validation.
	ErrInvalidPlan = errors.New("plan: invalid edit plan")
)

// Source records which strategy produced a plan.
type Source string

const (
	// SourceOracle marks a plan returned by the oracle.
	SourceOracle Source = "oracle"
	// SourceSilence marks the deterministic silence-based plan.
	SourceSilence Source = "silence"
)

// EditPlan is the hook plus keep/remove decomposition of a video, in
// original-timeline seconds. RemoveSegments is informational only.
type EditPlan struct {
	Hook           Segment   `json:"hook"`
	KeepSegments   []Segment `json:"keepSegments"`
	RemoveSegments []Segment `json:"removeSegments"`
	Notes          string    `json:"notes,omitempty"`
	Source         Source    `json:"source"`
}

// segmentDTO is the untrusted wire shape of a segment.
type segmentDTO struct {
	Start *float64 `json:"start" validate:"required,gte=0"`
	End   *float64 `json:"end" validate:"required,gt=0"`
}

// editPlanDTO is the untrusted wire shape of an oracle edit plan.
type editPlanDTO struct {
	Hook           *segmentDTO  `json:"hook" validate:"required"`
	KeepSegments   []segmentDTO `json:"keepSegments" validate:"required,min=1,dive"`
	RemoveSegments []segmentDTO `json:"removeSegments" validate:"omitempty,dive"`
	Notes          string       `json:"notes" validate:"max=2000"`
}

// ParseOracleReply extracts the JSON object from an oracle reply and
// validates it as an edit plan for a video of durationSec seconds.
func ParseOracleReply(v *validator.Validate, reply string, durationSec float64) (*EditPlan, error) {
	raw, err := oracle.ExtractJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	var dto editPlanDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidPlan, err)
	}
	if err := v.Struct(dto); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	p := &EditPlan{
		Hook:   dto.Hook.segment(),
		Notes:  dto.Notes,
		Source: SourceOracle,
	}
	for _, s := range dto.KeepSegments {
		p.KeepSegments = append(p.KeepSegments, s.segment())
	}
	for _, s := range dto.RemoveSegments {
		p.RemoveSegments = append(p.RemoveSegments, s.segment())
	}

	if err := p.Validate(durationSec); err != nil {
		return nil, err
	}
	return p, nil
}

func (s segmentDTO) segment() Segment {
	return Segment{Start: *s.Start, End: *s.End}
}

// Validate checks the plan invariants against the media duration:
// every segment satisfies 0 <= start < end <= duration and the hook
// lasts between MinHookSec and MaxHookSec.
func (p *EditPlan) Validate(durationSec float64) error {
	check := func(name string, s Segment) error {
		if !s.Valid() {
			return fmt.Errorf("%w: %s [%.3f, %.3f] is not a valid segment", ErrInvalidPlan, name, s.Start, s.End)
		}
		if s.End > durationSec+Epsilon {
			return fmt.Errorf("%w: %s ends at %.3f past duration %.3f", ErrInvalidPlan, name, s.End, durationSec)
		}
		return nil
	}

	if err := check("hook", p.Hook); err != nil {
		return err
	}
	if d := p.Hook.Duration(); d < MinHookSec-Epsilon || d > MaxHookSec+Epsilon {
		return fmt.Errorf("%w: hook lasts %.3fs, want %.0f-%.0fs", ErrInvalidPlan, d, MinHookSec, MaxHookSec)
	}
	for i, s := range p.KeepSegments {
		if err := check(fmt.Sprintf("keepSegments[%d]", i), s); err != nil {
			return err
		}
	}
	for i, s := range p.RemoveSegments {
		if err := check(fmt.Sprintf("removeSegments[%d]", i), s); err != nil {
			return err
		}
	}
	return nil
}
