package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rahul/synapse/internal/plan"
)

// resolveParams returns the parameters handed to every tool of a step: the
// step's own parameters plus defaults derived from the step and the plan.
func resolveParams(p *plan.Plan, s *plan.Step) map[string]string {
	params := make(map[string]string, len(s.Params)+3)
	for k, v := range s.Params {
		params[k] = v
	}
	setDefault(params, "query", s.Description)
	setDefault(params, "step_title", s.Title)
	setDefault(params, "plan_title", p.Title)
	return params
}

func setDefault(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok && value != "" {
		m[key] = value
	}
}

// formatOutput renders a step header followed by one block per invocation.
// A failed invocation renders as "❌ <tool> FAILED: <error>", which the
// default pattern table treats as a high priority signal.
func formatOutput(index int, s *plan.Step, invocations []plan.Invocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Step %d: %s", index+1, s.Title)
	if s.Dynamic {
		b.WriteString(" (dynamic)")
	}
	b.WriteString("\n")
	if s.Description != "" && s.Description != s.Title {
		b.WriteString(s.Description)
		b.WriteString("\n")
	}

	for _, inv := range invocations {
		b.WriteString("\n")
		if inv.Failed() {
			fmt.Fprintf(&b, "❌ %s FAILED: %s\n", inv.Tool, inv.Error)
			continue
		}
		fmt.Fprintf(&b, "✅ %s (%s)\n", inv.Tool, inv.Duration.Round(time.Millisecond))
		if text := strings.TrimSpace(inv.Result); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// progress is the share of terminal steps, in percent with one decimal.
func progress(p *plan.Plan) float64 {
	if len(p.Steps) == 0 {
		return 100
	}
	done := p.CountStatus(plan.StepCompleted) + p.CountStatus(plan.StepError)
	return math.Round(float64(done)/float64(len(p.Steps))*1000) / 10
}

func summarize(p *plan.Plan, elapsed time.Duration) string {
	completed := p.CountStatus(plan.StepCompleted)
	failed := p.CountStatus(plan.StepError)
	outputs := 0
	for _, s := range p.Steps {
		if s.Output != "" {
			outputs++
		}
	}

	headline := "🎉 PLAN EXECUTED"
	if failed > 0 {
		headline = "⚠️ PLAN EXECUTED WITH ERRORS"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headline)
	fmt.Fprintf(&b, "📋 Plan: %s\n", p.Title)
	fmt.Fprintf(&b, "📊 Steps: %d completed, %d with errors, %d total\n", completed, failed, len(p.Steps))
	fmt.Fprintf(&b, "🧩 Dynamic steps added: %d\n", p.DynamicCount())
	fmt.Fprintf(&b, "📝 Outputs generated: %d\n", outputs)
	fmt.Fprintf(&b, "⏱️ Duration: %s", elapsed.Round(time.Millisecond))

	for _, s := range p.Steps {
		if s.Status == plan.StepError {
			fmt.Fprintf(&b, "\n• %s %s: %s", s.ID, s.Title, s.Error)
		}
	}
	return b.String()
}
