package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rahul/synapse/internal/plan"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeExecution   EventType = "execution"
	EventTypeToolResult  EventType = "tool_result"
	EventTypeExpansion   EventType = "expansion"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeCost        EventType = "cost"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	PlanID    string    `json:"plan_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger writes one JSON object per line. LLM traffic is also appended to a
// rotated file under the log directory.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLoggerTo writes events to out and LLM traffic under dir.
func NewLoggerTo(out io.Writer, dir string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: filepath.Join(dir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", evt.Type, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

// LogPlan records a plan as produced by the planner.
func (l *Logger) LogPlan(p *plan.Plan) {
	steps := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, s.ID+" "+s.Title)
	}
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: p.ChatID,
		PlanID: p.ID,
		Data: map[string]any{
			"title": p.Title,
			"steps": steps,
		},
	})
}

// LogExecution mirrors an execution event into the structured log.
func (l *Logger) LogExecution(chatID string, evt plan.Event) {
	l.Log(Event{
		Type:      EventTypeExecution,
		ChatID:    chatID,
		PlanID:    evt.PlanID,
		Data:      evt,
		Timestamp: evt.Timestamp,
	})
}

func (l *Logger) LogToolResult(chatID, planID, stepID string, inv plan.Invocation) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		ChatID: chatID,
		PlanID: planID,
		Data: map[string]any{
			"step":        stepID,
			"tool":        inv.Tool,
			"error":       inv.Error,
			"duration_ms": inv.Duration.Milliseconds(),
		},
	})
}

// LogExpansion records a policy verdict on one analyzer signal.
func (l *Logger) LogExpansion(chatID, planID, stepID string, priority string, confidence float64, accepted bool, detail string) {
	l.Log(Event{
		Type:   EventTypeExpansion,
		ChatID: chatID,
		PlanID: planID,
		Data: map[string]any{
			"step":       stepID,
			"priority":   priority,
			"confidence": confidence,
			"accepted":   accepted,
			"detail":     detail,
		},
	})
}

func (l *Logger) LogPolicyDenied(chatID, planID, tool, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: chatID,
		PlanID: planID,
		Data: map[string]string{
			"tool":   tool,
			"effect": "deny",
			"reason": reason,
		},
	})
}

func (l *Logger) LogCost(chatID, planID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:   EventTypeCost,
		ChatID: chatID,
		PlanID: planID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]any{"status": "alive", "active_plans": ActivePlans()},
	})
}

func (l *Logger) LogLLM(chatID, planID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		PlanID: planID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
