package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const problemOutput = `🛠️ BUILD COMPLETED - Step 1/5

⚠️ PROBLEMS DETECTED:
• Error in the external API integration
• Performance problem on complex queries

✅ Status: artifact ready`

func TestAnalyzeCleanOutput(t *testing.T) {
	a := NewDefault()
	signals, err := a.Analyze("📋 Step done\n✅ echo (2ms)\nall good")
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestAnalyzeHighPriority(t *testing.T) {
	a := NewDefault()
	signals, err := a.Analyze(problemOutput)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, PriorityHigh, sig.Priority)
	assert.InDelta(t, 0.90, sig.Confidence, 1e-9)
	assert.Equal(t, reasonCritical, sig.Reason)

	var titles []string
	for _, s := range sig.Steps {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{"Configure external API integration", "Optimize system performance"}, titles)
}

func TestAnalyzeSpanishPhrasing(t *testing.T) {
	a := NewDefault()
	signals, err := a.Analyze("🔧 OPTIMIZACIÓN REQUERIDA:\n• nada más")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, PriorityMedium, signals[0].Priority)
	assert.Equal(t, "Implement optimizations", signals[0].Steps[0].Title)
}

func TestAnalyzeOrderFollowsTable(t *testing.T) {
	a := NewDefault()
	// The low priority phrase appears first in the text.
	out := "💡 RECOMMENDATIONS:\n• later\n❌ ERRORS FOUND:\n• now"
	signals, err := a.Analyze(out)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, PriorityHigh, signals[0].Priority)
	assert.Equal(t, PriorityLow, signals[1].Priority)
}

func TestAnalyzeFallbackSteps(t *testing.T) {
	a := NewDefault()
	signals, err := a.Analyze("❌ ERRORS FOUND")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "Fix identified errors", signals[0].Steps[0].Title)
	assert.Equal(t, "Validate fixes", signals[0].Steps[1].Title)
}

func TestAnalyzeCapsSuggestions(t *testing.T) {
	a := NewDefault(WithMaxSuggested(2))
	out := "❌ ERRORS FOUND: database, security, backup and SSL all broken"
	signals, err := a.Analyze(out)
	require.NoError(t, err)
	require.NotEmpty(t, signals)
	assert.Len(t, signals[0].Steps, 2)
}

func TestAnalyzeIsPure(t *testing.T) {
	a := NewDefault()
	first, err := a.Analyze(problemOutput)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := a.Analyze(problemOutput)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAnalyzeSignalsDoNotShareSteps(t *testing.T) {
	a := NewDefault()
	signals, err := a.Analyze("❌ ERRORS FOUND\n❌ deploy FAILED")
	require.NoError(t, err)
	require.Len(t, signals, 2)
	signals[0].Steps[0].Title = "mutated"
	assert.NotEqual(t, "mutated", signals[1].Steps[0].Title)
}

func TestAnalyzeMalformedOutput(t *testing.T) {
	a := NewDefault()
	_, err := a.Analyze("❌ ERRORS FOUND \xff\xfe")
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestNewPatternAnalyzerRejectsBadTable(t *testing.T) {
	_, err := NewPatternAnalyzer([]Entry{{Pattern: "(", Priority: PriorityHigh, Confidence: 0.9}}, nil)
	assert.Error(t, err)

	_, err = NewPatternAnalyzer([]Entry{{Pattern: "x", Priority: "urgent", Confidence: 0.9}}, nil)
	assert.Error(t, err)

	_, err = NewPatternAnalyzer([]Entry{{Pattern: "x", Priority: PriorityLow, Confidence: 1.5}}, nil)
	assert.Error(t, err)
}
