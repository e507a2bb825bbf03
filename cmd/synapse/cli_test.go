package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/rahul/synapse/internal/agent"
	"github.com/rahul/synapse/internal/engine"
	"github.com/rahul/synapse/internal/gateway"
	"github.com/rahul/synapse/internal/plan"
	"github.com/rahul/synapse/internal/tools"
	"github.com/rahul/synapse/pkg/config"
)

func TestServeIsDefault(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := parser.Parse([]string{})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Command() != "serve" {
		t.Errorf("expected serve, got %q", ctx.Command())
	}
	if cli.Config != "config.json" {
		t.Errorf("expected default config path, got %q", cli.Config)
	}
}

func TestRunCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte("title: t\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse([]string{"-c", "synapse.yaml", "run", path, "--chat", "42"}); err != nil {
		t.Fatal(err)
	}
	if cli.Run.Plan != path || cli.Run.Chat != "42" || cli.Config != "synapse.yaml" {
		t.Errorf("unexpected parse result: %+v", cli)
	}

	if _, err := parser.Parse([]string{"run", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected an error for a missing plan file")
	}
}

func TestReadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	body := `
steps:
  - title: Say hello
    tools: [echo]
    params:
      text: hello
  - id: custom
    title: Say bye
    tools: [echo]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := readPlan(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Error("expected a generated plan id")
	}
	if p.Title != "deploy" {
		t.Errorf("expected title from file name, got %q", p.Title)
	}
	if p.Steps[0].ID != "1" || p.Steps[1].ID != "custom" {
		t.Errorf("unexpected step ids: %s, %s", p.Steps[0].ID, p.Steps[1].ID)
	}
	if p.Steps[0].Status != plan.StepPending || p.Steps[0].Params["text"] != "hello" {
		t.Errorf("unexpected first step: %+v", p.Steps[0])
	}
}

func TestReadPlanRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.json")
	body := `{"id":"p","steps":[{"id":"a","title":"x"},{"id":"a","title":"y"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readPlan(path); err == nil {
		t.Error("expected duplicate ids to be rejected")
	}
}

func TestExpansionConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	got := expansionConfig(cfg)
	if got.MaxDynamicSteps != 5 || got.ConfidenceThreshold != 0.6 {
		t.Errorf("unexpected config: %+v", got)
	}
	if len(got.DynamicTools) != 1 || got.DynamicTools[0] != "llm" {
		t.Errorf("unexpected dynamic tools: %v", got.DynamicTools)
	}
}

func TestAppRunsPlanWithoutModel(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		App:    config.AppConfig{Workspace: filepath.Join(dir, "ws"), Prompts: filepath.Join(dir, "prompts")},
		Memory: config.MemoryConfig{Path: filepath.Join(dir, "synapse.db")},
	}
	cfg.ApplyDefaults()

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.registry.Get("llm") != nil {
		t.Error("llm tool should not be registered without a provider")
	}
	if _, ok := a.planner().(*agent.TemplatePlanner); !ok {
		t.Errorf("expected the template planner without a model, got %T", a.planner())
	}

	p := &plan.Plan{
		ID:    "cli-plan",
		Title: "cli",
		Steps: []plan.Step{
			{ID: "1", Title: "hello", Tools: []string{"echo"}, Params: map[string]string{"text": "hi"}, Status: plan.StepPending},
		},
	}
	var events []plan.Event
	obs := engine.ObserverFunc(func(ctx context.Context, evt plan.Event) error {
		events = append(events, evt)
		return nil
	})
	if err := a.engine.Run(ctx, p, obs); err != nil {
		t.Fatal(err)
	}
	if p.Status != plan.StatusCompleted {
		t.Errorf("expected completed, got %s", p.Status)
	}

	snaps, err := a.memory.List(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].PlanID != "cli-plan" {
		t.Errorf("unexpected snapshots: %+v", snaps)
	}
	if len(events) == 0 || events[len(events)-1].Type != plan.EventPlanCompleted {
		t.Errorf("unexpected events: %+v", events)
	}
}

type chatLog struct{ sent []string }

func (c *chatLog) Start(ctx context.Context) error { return nil }
func (c *chatLog) Stop() error                     { return nil }
func (c *chatLog) Send(chatID, text string) error {
	c.sent = append(c.sent, chatID+"|"+text)
	return nil
}

type echoPlanner struct{}

func (echoPlanner) Plan(ctx context.Context, chatID, request string) (*plan.Plan, error) {
	return &plan.Plan{
		ID:     "serve-plan",
		ChatID: chatID,
		Title:  request,
		Steps: []plan.Step{
			{ID: "1", Title: "first", Tools: []string{"echo"}, Params: map[string]string{"text": "one"}, Status: plan.StepPending},
			{ID: "2", Title: "second", Tools: []string{"echo"}, Params: map[string]string{"text": "two"}, Status: plan.StepPending},
		},
	}, nil
}

func TestAssistantStreamsProgressThroughRouter(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		App:    config.AppConfig{Workspace: filepath.Join(dir, "ws"), Prompts: filepath.Join(dir, "prompts")},
		Memory: config.MemoryConfig{Path: filepath.Join(dir, "synapse.db")},
	}
	cfg.ApplyDefaults()

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	chat := &chatLog{}
	router := gateway.NewRouter()
	router.Add("discord", chat)

	brain := a.assistant(router)
	brain.Planner = echoPlanner{}

	resp, err := brain.Think(ctx, "discord:42", "count")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp, "two") {
		t.Errorf("unexpected reply: %q", resp)
	}
	if len(chat.sent) != 2 {
		t.Fatalf("expected one progress message per step, got %v", chat.sent)
	}
	if !strings.HasPrefix(chat.sent[0], "42|✅ Step 1/2 done: first") {
		t.Errorf("unexpected progress message: %q", chat.sent[0])
	}
}

func TestRegisteredDynamicTools(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(tools.NewEchoTool())

	if got := registered(r, []string{"llm"}); len(got) != 1 || got[0] != "echo" {
		t.Errorf("expected echo fallback, got %v", got)
	}
	if got := registered(r, []string{"echo", "llm"}); len(got) != 1 || got[0] != "echo" {
		t.Errorf("expected only registered tools, got %v", got)
	}
}
