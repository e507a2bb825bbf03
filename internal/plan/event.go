package plan

import "time"

// EventType tags an ExecutionEvent.
type EventType string

const (
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventPlanExpanded  EventType = "plan_expanded"
	EventPlanCompleted EventType = "plan_completed"
	EventPlanCancelled EventType = "plan_cancelled"
)

// Event is an immutable, ordered notification of plan progress.
// Seq increases by one for every event of the same plan.
type Event struct {
	Seq          int       `json:"seq"`
	PlanID       string    `json:"plan_id"`
	StepID       string    `json:"step_id,omitempty"`
	Type         EventType `json:"type"`
	Status       string    `json:"status,omitempty"`
	Title        string    `json:"title,omitempty"`
	Output       string    `json:"output,omitempty"`
	Error        string    `json:"error,omitempty"`
	NewStepCount int       `json:"new_step_count,omitempty"`
	NewSteps     []string  `json:"new_steps,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	CurrentStep  int       `json:"current_step,omitempty"`
	TotalSteps   int       `json:"total_steps,omitempty"`
	Progress     float64   `json:"progress,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
