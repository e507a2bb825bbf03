package expansion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/synapse/internal/analysis"
	"github.com/rahul/synapse/internal/plan"
)

// sequence returns a random source that replays vals and then repeats the
// last one.
func sequence(vals ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := vals[i]
		if i < len(vals)-1 {
			i++
		}
		return v
	}
}

func signal(p analysis.Priority, conf float64, titles ...string) analysis.Signal {
	s := analysis.Signal{Priority: p, Confidence: conf, Reason: "test"}
	for _, t := range titles {
		s.Steps = append(s.Steps, analysis.StepDescriptor{Title: t})
	}
	return s
}

func basePlan() *plan.Plan {
	return &plan.Plan{ID: "p", Steps: []plan.Step{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
}

func TestHighPriorityAlwaysAccepted(t *testing.T) {
	// Any draw would reject a medium or low signal.
	pol := New(DefaultConfig(), WithRand(sequence(0.999)))
	for i := 0; i < 100; i++ {
		pl := basePlan()
		d := pol.Evaluate(pl, &pl.Steps[1], []analysis.Signal{signal(analysis.PriorityHigh, 0.6, "fix")})
		require.Len(t, d, 1)
		assert.True(t, d[0].Accepted, "trial %d", i)
	}
}

func TestConfidenceThreshold(t *testing.T) {
	pol := New(DefaultConfig(), WithRand(sequence(0)))
	pl := basePlan()
	d := pol.Evaluate(pl, &pl.Steps[0], []analysis.Signal{signal(analysis.PriorityHigh, 0.59, "fix")})
	require.Len(t, d, 1)
	assert.False(t, d[0].Accepted)
	assert.Contains(t, d[0].Rejection, "below threshold")
}

func TestMediumAndLowDraws(t *testing.T) {
	tests := []struct {
		name     string
		priority analysis.Priority
		draw     float64
		accepted bool
	}{
		{"medium accepted", analysis.PriorityMedium, 0.69, true},
		{"medium rejected", analysis.PriorityMedium, 0.70, false},
		{"low accepted", analysis.PriorityLow, 0.39, true},
		{"low rejected", analysis.PriorityLow, 0.40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := New(DefaultConfig(), WithRand(sequence(tt.draw)))
			pl := basePlan()
			d := pol.Evaluate(pl, &pl.Steps[0], []analysis.Signal{signal(tt.priority, 0.8, "x")})
			require.Len(t, d, 1)
			assert.Equal(t, tt.accepted, d[0].Accepted)
		})
	}
}

func TestGeneratedSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DynamicTools = []string{"llm"}
	pol := New(cfg)
	pl := basePlan()
	d := pol.Evaluate(pl, &pl.Steps[1], []analysis.Signal{signal(analysis.PriorityHigh, 0.9, "a", "b")})
	require.Len(t, d, 1)
	require.Len(t, d[0].Steps, 2)

	s := d[0].Steps[0]
	assert.Equal(t, "2.1", s.ID)
	assert.Equal(t, "2.2", d[0].Steps[1].ID)
	assert.True(t, s.Dynamic)
	assert.Equal(t, plan.StepPending, s.Status)
	assert.Equal(t, "2", s.ParentStep)
	assert.Equal(t, "high", s.Priority)
	assert.Equal(t, []string{"llm"}, s.Tools)
}

func TestIDsStayUnique(t *testing.T) {
	pol := New(DefaultConfig())
	pl := basePlan()
	pl.Insert(1, plan.Step{ID: "2.1", Dynamic: true})
	d := pol.Evaluate(pl, &pl.Steps[1], []analysis.Signal{
		signal(analysis.PriorityHigh, 0.9, "a"),
		signal(analysis.PriorityHigh, 0.9, "b"),
	})
	require.Len(t, d, 2)
	assert.Equal(t, "2.2", d[0].Steps[0].ID)
	assert.Equal(t, "2.3", d[1].Steps[0].ID)
}

func TestBudgetTruncatesAndStops(t *testing.T) {
	pol := New(DefaultConfig())
	pl := basePlan()
	for i := 0; i < 4; i++ {
		pl.Steps = append(pl.Steps, plan.Step{ID: string(rune('a' + i)), Dynamic: true})
	}

	d := pol.Evaluate(pl, &pl.Steps[0], []analysis.Signal{
		signal(analysis.PriorityHigh, 0.9, "x", "y", "z"),
		signal(analysis.PriorityHigh, 0.9, "w"),
		signal(analysis.PriorityHigh, 0.9, "v"),
	})
	require.Len(t, d, 2, "evaluation stops at the first budget rejection")
	assert.True(t, d[0].Accepted)
	assert.Len(t, d[0].Steps, 1)
	assert.False(t, d[1].Accepted)
	assert.Contains(t, d[1].Rejection, "budget")
}

func TestRandOnlyDrawnForMediumAndLow(t *testing.T) {
	draws := 0
	pol := New(DefaultConfig(), WithRand(func() float64 {
		draws++
		return 0
	}))
	pl := basePlan()
	pol.Evaluate(pl, &pl.Steps[0], []analysis.Signal{
		signal(analysis.PriorityHigh, 0.9, "a"),
		signal(analysis.PriorityMedium, 0.5, "b"),
		signal(analysis.PriorityLow, 0.9, "c"),
	})
	assert.Equal(t, 1, draws)
}
