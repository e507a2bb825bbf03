// Package agent connects chat requests to the plan engine: it plans a
// request, runs the plan and turns the result into a reply.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/synapse/internal/engine"
	"github.com/rahul/synapse/internal/observability"
	"github.com/rahul/synapse/internal/plan"
	"github.com/rahul/synapse/internal/store"
)

// Brain defines the core intelligence interface for the agent.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

type HistoryStore interface {
	AddMessage(ctx context.Context, chatID string, role string, content string) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error)
}

// PlanRunner executes a plan. *engine.Orchestrator implements it.
type PlanRunner interface {
	Run(ctx context.Context, p *plan.Plan, obs engine.Observer) error
}

// PlanLog reads back recorded plans. *store.ExecutionMemory implements it.
type PlanLog interface {
	List(ctx context.Context, limit int) ([]store.Snapshot, error)
}

// Assistant answers a chat message by planning it and running the plan.
type Assistant struct {
	Planner Planner
	Engine  PlanRunner
	History HistoryStore
	Plans   PlanLog
	Logger  *observability.Logger
	// Observe returns the observer that streams a plan's events back to
	// the chat. May be nil.
	Observe func(chatID string) engine.Observer
}

func NewAssistant(planner Planner, runner PlanRunner, history HistoryStore, plans PlanLog, logger *observability.Logger) *Assistant {
	return &Assistant{
		Planner: planner,
		Engine:  runner,
		History: history,
		Plans:   plans,
		Logger:  logger,
	}
}

func (a *Assistant) Think(ctx context.Context, chatID string, input string) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(input), "/history") {
		return a.planHistory(ctx, chatID)
	}

	pl, err := a.Planner.Plan(ctx, chatID, input)
	if err != nil {
		return "", fmt.Errorf("planning error: %w", err)
	}
	if a.Logger != nil {
		a.Logger.LogPlan(pl)
	}
	log.Printf("[Assistant] Plan %s for chat %s: %s (%d steps)", pl.ID, chatID, pl.Title, len(pl.Steps))

	var obs engine.Observer
	if a.Observe != nil {
		obs = a.Observe(chatID)
	}

	runErr := a.Engine.Run(ctx, pl, obs)
	if runErr != nil && pl.Status != plan.StatusCompleted {
		return "", runErr
	}
	if runErr != nil {
		// The run finished; only saving it failed.
		log.Printf("Warning: %v", runErr)
	}

	response := reply(pl)
	if a.History != nil {
		if err := a.History.AddMessage(ctx, chatID, "human", input); err != nil {
			log.Printf("Warning: Failed to save message: %v", err)
		}
		if err := a.History.AddMessage(ctx, chatID, "ai", response); err != nil {
			log.Printf("Warning: Failed to save reply: %v", err)
		}
	}
	return response, nil
}

const maxReplyOutput = 3000

// reply is the final summary followed by the output of the last step. A
// direct answer from the planner is returned as is.
func reply(pl *plan.Plan) string {
	if len(pl.Steps) == 1 && pl.Steps[0].Status == plan.StepCompleted {
		if text, ok := pl.Steps[0].Params["text"]; ok {
			return text
		}
	}

	var b strings.Builder
	b.WriteString(pl.FinalSummary)
	if n := len(pl.Steps); n > 0 {
		out := pl.Steps[n-1].Output
		if len(out) > maxReplyOutput {
			cut := maxReplyOutput
			for cut > 0 && !utf8.RuneStart(out[cut]) {
				cut--
			}
			out = out[:cut] + "\n... (truncated)"
		}
		if out != "" {
			b.WriteString("\n\n")
			b.WriteString(out)
		}
	}
	return b.String()
}

func (a *Assistant) planHistory(ctx context.Context, chatID string) (string, error) {
	if a.Plans == nil {
		return "Plan history is not available.", nil
	}
	snapshots, err := a.Plans.List(ctx, 100)
	if err != nil {
		return "", fmt.Errorf("failed to read plan history: %w", err)
	}

	var b strings.Builder
	seen := map[string]bool{}
	for _, s := range snapshots {
		if s.ChatID != chatID || seen[s.PlanID] {
			continue
		}
		seen[s.PlanID] = true
		fmt.Fprintf(&b, "• %s [%s] %d steps, %d dynamic (%s)\n",
			s.Title, s.Status, len(s.Plan.Steps), s.Plan.DynamicCount(), s.CreatedAt.Format("2006-01-02 15:04"))
		if len(seen) == 5 {
			break
		}
	}
	if b.Len() == 0 {
		return "No plans yet.", nil
	}
	return "📚 Recent plans\n\n" + b.String(), nil
}
