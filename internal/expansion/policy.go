// Package expansion decides which analyzer signals mutate a running plan.
package expansion

import (
	"fmt"
	"math/rand/v2"

	"github.com/rahul/synapse/internal/analysis"
	"github.com/rahul/synapse/internal/plan"
)

// Config holds the fixed thresholds of the policy.
type Config struct {
	MaxDynamicSteps     int
	ConfidenceThreshold float64
	MediumAcceptance    float64
	LowAcceptance       float64
	// Tools assigned to every generated step.
	DynamicTools []string
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		MaxDynamicSteps:     5,
		ConfidenceThreshold: 0.6,
		MediumAcceptance:    0.7,
		LowAcceptance:       0.4,
	}
}

// Decision is the outcome for a single signal.
type Decision struct {
	Signal   analysis.Signal
	Accepted bool
	// Why the signal was rejected; empty when accepted.
	Rejection string
	Steps     []plan.Step
}

// Policy applies Config to signals. It is safe for concurrent use as long as
// the random source is.
type Policy struct {
	cfg  Config
	rand func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand injects the random source used for medium and low priority
// signals. It must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(p *Policy) {
		if f != nil {
			p.rand = f
		}
	}
}

// New returns a Policy with the given config.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{cfg: cfg, rand: rand.Float64}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the policy thresholds.
func (p *Policy) Config() Config {
	return p.cfg
}

// Evaluate walks the signals produced for trigger in order. The plan is not
// modified; accepted decisions carry ready-to-insert steps whose ids are
// unique within pl. Once the dynamic budget is exhausted no further signals
// are evaluated.
func (p *Policy) Evaluate(pl *plan.Plan, trigger *plan.Step, signals []analysis.Signal) []Decision {
	decisions := make([]Decision, 0, len(signals))
	used := pl.DynamicCount()
	taken := map[string]bool{}

	for _, sig := range signals {
		remaining := p.cfg.MaxDynamicSteps - used
		if remaining <= 0 {
			decisions = append(decisions, Decision{Signal: sig, Rejection: "dynamic step budget exhausted"})
			break
		}
		if sig.Confidence < p.cfg.ConfidenceThreshold {
			decisions = append(decisions, Decision{
				Signal:    sig,
				Rejection: fmt.Sprintf("confidence %.2f below threshold %.2f", sig.Confidence, p.cfg.ConfidenceThreshold),
			})
			continue
		}
		if !p.accept(sig.Priority) {
			decisions = append(decisions, Decision{Signal: sig, Rejection: fmt.Sprintf("%s priority signal not drawn", sig.Priority)})
			continue
		}
		if len(sig.Steps) == 0 {
			decisions = append(decisions, Decision{Signal: sig, Rejection: "no steps suggested"})
			continue
		}

		descs := sig.Steps
		if len(descs) > remaining {
			descs = descs[:remaining]
		}
		steps := make([]plan.Step, 0, len(descs))
		for _, d := range descs {
			id := p.nextID(pl, trigger.ID, taken)
			taken[id] = true
			steps = append(steps, plan.Step{
				ID:              id,
				Title:           d.Title,
				Description:     d.Description,
				Tools:           append([]string(nil), p.cfg.DynamicTools...),
				Status:          plan.StepPending,
				Dynamic:         true,
				ParentStep:      trigger.ID,
				Priority:        string(sig.Priority),
				ExpansionReason: sig.Reason,
			})
		}
		used += len(steps)
		decisions = append(decisions, Decision{Signal: sig, Accepted: true, Steps: steps})
	}
	return decisions
}

func (p *Policy) accept(priority analysis.Priority) bool {
	switch priority {
	case analysis.PriorityHigh:
		return true
	case analysis.PriorityMedium:
		return p.rand() < p.cfg.MediumAcceptance
	case analysis.PriorityLow:
		return p.rand() < p.cfg.LowAcceptance
	default:
		return false
	}
}

func (p *Policy) nextID(pl *plan.Plan, parent string, taken map[string]bool) string {
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s.%d", parent, n)
		if !taken[id] && !pl.HasStep(id) {
			return id
		}
	}
}
