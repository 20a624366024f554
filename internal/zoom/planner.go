package zoom

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autoedit/internal/oracle"
)

const systemPrompt = `You add subtle punch-in zooms to a talking-head video to emphasise key moments.
Given the transcript and the duration in seconds, reply with a single JSON object:
{"zooms":[{"start":number,"end":number,"type":"in"|"out","scale":number,"easing":"linear"|"easeInOut","reason":string}]}
Rules:
- each zoom lasts 0.8 to 3.0 seconds;
- "in" zooms use scale 1.03 to 1.12, "out" zooms use scale 1.00 to 1.06;
- leave at least 1.5 seconds between consecutive zooms;
- 0 <= start < end <= duration.
Return {"zooms":[]} if nothing deserves emphasis. No prose.`

// Planner asks the oracle for zooms and enforces the guardrails.
type Planner struct {
	oracle   oracle.Client
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPlanner creates a Planner. A nil client always yields no zooms.
func NewPlanner(client oracle.Client, v *validator.Validate, logger *slog.Logger) *Planner {
	if v == nil {
		v = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{oracle: client, validate: v, logger: logger}
}

// Plan returns zooms on the original timeline. A failed request or a
// plan violating any guardrail yields an empty plan, never an error.
func (p *Planner) Plan(ctx context.Context, transcript string, durationSec float64) []Zoom {
	if p.oracle == nil || transcript == "" {
		return nil
	}

	user := fmt.Sprintf("Duration: %s seconds\n\nTranscript:\n%s",
		strconv.FormatFloat(durationSec, 'f', 3, 64), transcript)
	reply, err := p.oracle.RequestJSON(ctx, systemPrompt, user)
	if err != nil {
		p.logger.Warn("zoom plan request failed", slog.String("error", err.Error()))
		return nil
	}

	zooms, err := ParseOracleReply(p.validate, reply, durationSec)
	if err != nil {
		p.logger.Warn("zoom plan rejected", slog.String("error", err.Error()))
		return nil
	}

	p.logger.Info("zoom plan ready", slog.Int("zooms", len(zooms)))
	return zooms
}
