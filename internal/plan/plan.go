// Package plan holds the data model shared by the planner, the orchestrator
// and the execution memory.
package plan

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle status of a Plan.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StepStatus is the lifecycle status of a Step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// Terminal reports whether no further transition is possible.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// Step is one unit of work in a Plan.
type Step struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description" yaml:"description"`
	Tools       []string          `json:"tools,omitempty" yaml:"tools,omitempty"`
	Params      map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Status      StepStatus        `json:"status" yaml:"status"`
	Output      string            `json:"output,omitempty" yaml:"output,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`

	// Set only on steps inserted at runtime.
	Dynamic         bool   `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	ParentStep      string `json:"parent_step,omitempty" yaml:"parent_step,omitempty"`
	Priority        string `json:"priority,omitempty" yaml:"priority,omitempty"`
	ExpansionReason string `json:"expansion_reason,omitempty" yaml:"expansion_reason,omitempty"`

	StartedAt   time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Duration returns how long the step ran, or zero if it has not finished.
func (s *Step) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Plan is the ordered list of Steps executed for one user request.
type Plan struct {
	ID           string    `json:"id" yaml:"id"`
	ChatID       string    `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	Title        string    `json:"title" yaml:"title"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Steps        []Step    `json:"steps" yaml:"steps"`
	Status       Status    `json:"status" yaml:"status"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	FinalSummary string    `json:"final_summary,omitempty" yaml:"final_summary,omitempty"`
}

// Validate checks the invariants a plan must satisfy before execution.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("step %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// HasStep reports whether a step with the given id exists.
func (p *Plan) HasStep(id string) bool {
	for _, s := range p.Steps {
		if s.ID == id {
			return true
		}
	}
	return false
}

// DynamicCount returns the number of steps inserted at runtime.
func (p *Plan) DynamicCount() int {
	n := 0
	for _, s := range p.Steps {
		if s.Dynamic {
			n++
		}
	}
	return n
}

// CountStatus returns how many steps are in the given status.
func (p *Plan) CountStatus(status StepStatus) int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// Insert splices steps immediately after position i.
func (p *Plan) Insert(i int, steps ...Step) {
	if len(steps) == 0 {
		return
	}
	tail := append([]Step{}, p.Steps[i+1:]...)
	p.Steps = append(append(p.Steps[:i+1], steps...), tail...)
}

// Clone returns a deep copy suitable for handing to another goroutine.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		s.Tools = append([]string(nil), s.Tools...)
		if s.Params != nil {
			params := make(map[string]string, len(s.Params))
			for k, v := range s.Params {
				params[k] = v
			}
			s.Params = params
		}
		c.Steps[i] = s
	}
	return &c
}

// Marshal encodes the plan as a JSON snapshot.
func (p *Plan) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Unmarshal decodes a JSON snapshot.
func Unmarshal(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan snapshot: %w", err)
	}
	return &p, nil
}

// Invocation records one dispatch of a tool for a step.
type Invocation struct {
	Tool     string            `json:"tool"`
	Params   map[string]string `json:"params,omitempty"`
	Result   string            `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Failed reports whether the invocation ended in an error.
func (i Invocation) Failed() bool {
	return i.Error != ""
}
