package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/synapse/internal/plan"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	l := NewLoggerTo(&buf, dir)

	l.LogPlan(&plan.Plan{ID: "p1", ChatID: "c1", Title: "t", Steps: []plan.Step{{ID: "1", Title: "a"}}})
	l.LogToolResult("c1", "p1", "1", plan.Invocation{Tool: "echo", Duration: 1500 * time.Millisecond})
	l.LogExpansion("c1", "p1", "1", "high", 0.95, true, "Critical errors detected")
	l.LogLLM("c1", "p1", "prompt", "response", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)

	assert.Equal(t, "plan", lines[0]["type"])
	assert.Equal(t, "p1", lines[0]["plan_id"])
	assert.Equal(t, "tool_result", lines[1]["type"])
	assert.EqualValues(t, 1500, lines[1]["data"].(map[string]any)["duration_ms"])
	assert.Equal(t, true, lines[2]["data"].(map[string]any)["accepted"])

	data, err := os.ReadFile(filepath.Join(dir, "llm.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"response":"response"`)
}

func TestLogExecutionKeepsEventTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, t.TempDir())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.LogExecution("c1", plan.Event{Type: plan.EventStepStarted, PlanID: "p1", Seq: 3, Timestamp: ts})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "execution", lines[0]["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", lines[0]["timestamp"])
}

func TestLLMLogRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerTo(&bytes.Buffer{}, dir)
	l.maxSize = 10

	l.LogLLM("", "", "first", "first", nil)
	l.LogLLM("", "", "second", "second", nil)

	old, err := os.ReadFile(filepath.Join(dir, "llm.jsonl.old"))
	require.NoError(t, err)
	assert.Contains(t, string(old), "first")

	cur, err := os.ReadFile(filepath.Join(dir, "llm.jsonl"))
	require.NoError(t, err)
	assert.NotContains(t, string(cur), "first")
}

func TestStatusTracking(t *testing.T) {
	done := BeginPlanning("write a poem")
	s := GetStatus()
	assert.Equal(t, RolePlanner, s.Role)
	assert.Equal(t, "write a poem", s.Task)

	TrackPlan("b-plan", "second")
	TrackPlan("a-plan", "first")
	StepProgress("a-plan", 2, 5)

	s = GetStatus()
	assert.Equal(t, RoleExecutor, s.Role)
	assert.Equal(t, "first", s.Task)
	assert.Equal(t, 2, s.Plans)
	assert.Equal(t, 2, s.CurrentStep)
	assert.Equal(t, 5, s.TotalSteps)

	UntrackPlan("a-plan")
	UntrackPlan("b-plan")
	assert.Equal(t, RolePlanner, GetStatus().Role)

	done()
	done()
	assert.Equal(t, RoleIdle, GetStatus().Role)
}

func TestHealth(t *testing.T) {
	assert.Equal(t, "HEALTHY", health(10*time.Second).text)
	assert.Equal(t, "LAGGING", health(60*time.Second).text)
	assert.Equal(t, "OFFLINE", health(2*time.Minute).text)
}

func TestTaskLabel(t *testing.T) {
	assert.Equal(t, "Waiting...", taskLabel(Status{}))
	assert.Equal(t, "2/5 deploy", taskLabel(Status{Task: "deploy", CurrentStep: 2, TotalSteps: 5, Plans: 1}))
	assert.Equal(t, "+2 1/3 deploy", taskLabel(Status{Task: "deploy", CurrentStep: 1, TotalSteps: 3, Plans: 3}))

	long := taskLabel(Status{Task: strings.Repeat("ü", 40)})
	assert.Equal(t, 28, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestStatusLine(t *testing.T) {
	now := time.Now()
	s := Status{Role: RoleExecutor, Task: "deploy", CurrentStep: 1, TotalSteps: 2, Plans: 1, LastHeartbeat: now}
	line := statusLine(s, now, 90*time.Second, 10<<20, 20<<20, 1)

	assert.Contains(t, line, "HEALTHY")
	assert.Contains(t, line, "EXECUTOR")
	assert.Contains(t, line, "1/2 deploy")
	assert.Contains(t, line, "[1m30s]")
	assert.Contains(t, line, "10.0MB")
	assert.Contains(t, line, radarFrames[1])
}

func TestMemoryBar(t *testing.T) {
	bar, color := memoryBar(0, 0, 4)
	assert.Equal(t, "▒▒▒▒", bar)
	assert.Equal(t, colorNeonCyan, color)

	bar, color = memoryBar(9, 10, 4)
	assert.Equal(t, "███▒", bar)
	assert.Equal(t, colorNeonMag, color)
}

func TestCentered(t *testing.T) {
	out := centered("ab", 6)
	assert.True(t, strings.HasPrefix(out, "  "+colorNeonCyan+"ab"))
}
