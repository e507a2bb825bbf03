package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/synapse/internal/observability"
	"github.com/rahul/synapse/internal/plan"
	"github.com/rahul/synapse/internal/tools"
)

// Planner turns a chat request into a plan for the engine.
type Planner interface {
	Plan(ctx context.Context, chatID string, request string) (*plan.Plan, error)
}

// ToolCatalog lists the tools a planner may assign. *tools.Registry
// implements it.
type ToolCatalog interface {
	List() []tools.Tool
	Get(name string) tools.Tool
}

// LLMPlanner asks the model for a plan through the propose_plan tool call.
// A plain text answer becomes a one-step plan that echoes it.
type LLMPlanner struct {
	Model   llms.Model
	Tools   ToolCatalog
	History HistoryStore
	Prompts *PromptManager
	Logger  *observability.Logger
	// Tool given to steps the model left without a known tool.
	DefaultTool string
}

func NewLLMPlanner(model llms.Model, catalog ToolCatalog, history HistoryStore, prompts *PromptManager, logger *observability.Logger) *LLMPlanner {
	return &LLMPlanner{
		Model:       model,
		Tools:       catalog,
		History:     history,
		Prompts:     prompts,
		Logger:      logger,
		DefaultTool: "llm",
	}
}

type proposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Steps       []struct {
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Tools       []string          `json:"tools"`
		Params      map[string]string `json:"params"`
	} `json:"steps"`
}

var proposePlanTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "propose_plan",
		Description: "Submit a structured plan consisting of ordered steps. Each step names the tools that carry it out.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"steps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title":       map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
							"tools": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "string"},
							},
							"params": map[string]any{
								"type":                 "object",
								"additionalProperties": map[string]any{"type": "string"},
							},
						},
						"required": []string{"title", "tools"},
					},
				},
			},
			"required": []string{"title", "steps"},
		},
	},
}

func (p *LLMPlanner) Plan(ctx context.Context, chatID string, request string) (*plan.Plan, error) {
	defer observability.BeginPlanning(request)()

	plannerPrompt, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load planner prompt: %w", err)
	}

	var toolDescriptions []string
	for _, t := range p.Tools.List() {
		toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s (%s): %s", t.Name(), t.Kind(), t.Description()))
	}
	fullPrompt := fmt.Sprintf("%s\n\n## Available Tools:\n%s", plannerPrompt, strings.Join(toolDescriptions, "\n"))

	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, fullPrompt)}
	if p.History != nil {
		history, err := p.History.GetHistory(ctx, chatID, 5)
		if err != nil {
			log.Printf("Warning: Failed to load history for %s: %v", chatID, err)
		}
		messages = append(messages, history...)
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, request))

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposePlanTool}))
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner: no choices returned")
	}
	choice := resp.Choices[0]

	if p.Logger != nil {
		p.Logger.LogLLM(chatID, "", request, choice.Content, choice.ToolCalls)
		if prompt, completion, ok := tokenUsage(choice.GenerationInfo); ok {
			p.Logger.LogCost(chatID, "", prompt, completion, "planner")
		}
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		var prop proposal
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &prop); err != nil {
			return nil, fmt.Errorf("failed to parse propose_plan arguments: %w", err)
		}
		return p.build(chatID, request, prop)
	}

	if choice.Content != "" {
		return directAnswer(chatID, request, choice.Content), nil
	}
	return nil, fmt.Errorf("planner failed to provide a plan or text response")
}

func (p *LLMPlanner) build(chatID, request string, prop proposal) (*plan.Plan, error) {
	if len(prop.Steps) == 0 {
		return nil, fmt.Errorf("planner proposed an empty plan")
	}
	pl := newPlan(chatID, prop.Title, prop.Description)
	if pl.Title == "" {
		pl.Title = request
	}

	for i, s := range prop.Steps {
		var assigned []string
		for _, name := range s.Tools {
			if p.Tools.Get(name) != nil {
				assigned = append(assigned, name)
			} else {
				log.Printf("[Planner] Dropping unknown tool %q from step %d", name, i+1)
			}
		}
		if len(assigned) == 0 && p.DefaultTool != "" && p.Tools.Get(p.DefaultTool) != nil {
			assigned = []string{p.DefaultTool}
		}
		pl.Steps = append(pl.Steps, plan.Step{
			ID:          strconv.Itoa(i + 1),
			Title:       s.Title,
			Description: s.Description,
			Tools:       assigned,
			Params:      s.Params,
			Status:      plan.StepPending,
		})
	}
	return pl, nil
}

func directAnswer(chatID, request, answer string) *plan.Plan {
	pl := newPlan(chatID, request, "")
	pl.Steps = []plan.Step{{
		ID:     "1",
		Title:  "Answer",
		Tools:  []string{"echo"},
		Params: map[string]string{"text": answer},
		Status: plan.StepPending,
	}}
	return pl
}

func newPlan(chatID, title, description string) *plan.Plan {
	return &plan.Plan{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		Title:       title,
		Description: description,
		Status:      plan.StatusActive,
		CreatedAt:   time.Now(),
	}
}

func tokenUsage(info map[string]any) (prompt, completion int, ok bool) {
	pt, ok1 := info["PromptTokens"].(int)
	ct, ok2 := info["CompletionTokens"].(int)
	return pt, ct, ok1 && ok2
}

// TemplatePlanner builds a fixed research-then-act plan. It needs no model
// and is used when the model is unavailable.
type TemplatePlanner struct {
	Tools ToolCatalog
}

func (t *TemplatePlanner) Plan(ctx context.Context, chatID string, request string) (*plan.Plan, error) {
	pl := newPlan(chatID, request, "Plan built from the default template")
	steps := []struct {
		title, description string
		tools              []string
	}{
		{"Analyze request", "Understand the specific requirements: " + request, []string{"llm"}},
		{"Research", "Find relevant information", []string{"web_search"}},
		{"Implement", "Carry out the proposed solution", []string{"llm"}},
	}
	for _, s := range steps {
		var assigned []string
		for _, name := range s.tools {
			if t.Tools.Get(name) != nil {
				assigned = append(assigned, name)
			}
		}
		if len(assigned) == 0 {
			assigned = []string{"echo"}
		}
		pl.Steps = append(pl.Steps, plan.Step{
			ID:          strconv.Itoa(len(pl.Steps) + 1),
			Title:       s.title,
			Description: s.description,
			Tools:       assigned,
			Status:      plan.StepPending,
		})
	}
	return pl, nil
}

// FallbackPlanner tries Primary and falls back to Secondary on error.
type FallbackPlanner struct {
	Primary   Planner
	Secondary Planner
}

func (f *FallbackPlanner) Plan(ctx context.Context, chatID string, request string) (*plan.Plan, error) {
	pl, err := f.Primary.Plan(ctx, chatID, request)
	if err == nil {
		return pl, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	log.Printf("[Planner] Falling back to template plan: %v", err)
	return f.Secondary.Plan(ctx, chatID, request)
}
