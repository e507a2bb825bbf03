package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/synapse/internal/analysis"
	"github.com/rahul/synapse/internal/engine"
	"github.com/rahul/synapse/internal/expansion"
	"github.com/rahul/synapse/internal/plan"
	"github.com/rahul/synapse/internal/store"
	"github.com/rahul/synapse/internal/tools"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func promptDir(t *testing.T) *PromptManager {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "planner.md"), []byte("You plan."), 0644); err != nil {
		t.Fatal(err)
	}
	return NewPromptManager(dir)
}

func catalog() *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.NewEchoTool())
	r.Register(tools.NewFilesystemTool(os.TempDir()))
	return r
}

func TestLLMPlannerBuildsPlan(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   "call_1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name: "propose_plan",
				Arguments: `{"title":"Report","steps":[
					{"title":"Collect","description":"list files","tools":["filesystem","teleport"],"params":{"command":"list"}},
					{"title":"Write up","tools":["unknown"]}
				]}`,
			},
		}},
	}}}}

	p := NewLLMPlanner(model, catalog(), nil, promptDir(t), nil)
	p.DefaultTool = "echo"

	pl, err := p.Plan(context.Background(), "c1", "make a report")
	if err != nil {
		t.Fatal(err)
	}
	if pl.ID == "" || pl.ChatID != "c1" || pl.Title != "Report" {
		t.Errorf("unexpected plan header: %+v", pl)
	}
	if len(pl.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(pl.Steps))
	}
	if got := pl.Steps[0].Tools; len(got) != 1 || got[0] != "filesystem" {
		t.Errorf("unknown tools must be dropped, got %v", got)
	}
	if pl.Steps[0].Params["command"] != "list" {
		t.Errorf("params lost: %v", pl.Steps[0].Params)
	}
	if got := pl.Steps[1].Tools; len(got) != 1 || got[0] != "echo" {
		t.Errorf("expected default tool, got %v", got)
	}
	if err := pl.Validate(); err != nil {
		t.Error(err)
	}

	system := model.messages[0].Parts[0].(llms.TextContent).Text
	if !strings.Contains(system, "You plan.") || !strings.Contains(system, "- filesystem (direct)") {
		t.Errorf("system prompt missing planner text or tools: %q", system)
	}
}

func TestLLMPlannerDirectAnswer(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Hello!"}}}}
	p := NewLLMPlanner(model, catalog(), nil, promptDir(t), nil)

	pl, err := p.Plan(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(pl.Steps) != 1 || pl.Steps[0].Tools[0] != "echo" || pl.Steps[0].Params["text"] != "Hello!" {
		t.Errorf("unexpected direct answer plan: %+v", pl.Steps)
	}
}

func TestFallbackPlanner(t *testing.T) {
	model := &fakeModel{err: errors.New("provider down")}
	f := &FallbackPlanner{
		Primary:   NewLLMPlanner(model, catalog(), nil, promptDir(t), nil),
		Secondary: &TemplatePlanner{Tools: catalog()},
	}

	pl, err := f.Plan(context.Background(), "c1", "research go generics")
	if err != nil {
		t.Fatal(err)
	}
	if len(pl.Steps) != 3 {
		t.Fatalf("expected template plan, got %d steps", len(pl.Steps))
	}
	for _, s := range pl.Steps {
		if len(s.Tools) != 1 || s.Tools[0] != "echo" {
			t.Errorf("step %s: tools not available in catalog should fall back to echo, got %v", s.ID, s.Tools)
		}
	}
}

type fixedPlanner struct{ pl *plan.Plan }

func (f fixedPlanner) Plan(ctx context.Context, chatID, request string) (*plan.Plan, error) {
	f.pl.ChatID = chatID
	return f.pl, nil
}

type memHistory struct{ msgs []string }

func (m *memHistory) AddMessage(ctx context.Context, chatID, role, content string) error {
	m.msgs = append(m.msgs, role+":"+content)
	return nil
}

func (m *memHistory) GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error) {
	return nil, nil
}

func testEngine() *engine.Orchestrator {
	return engine.New(catalog(), analysis.NewDefault(), expansion.New(expansion.DefaultConfig()))
}

func TestAssistantRunsPlan(t *testing.T) {
	pl := &plan.Plan{ID: "a1", Title: "greet", Steps: []plan.Step{
		{ID: "1", Title: "Say", Tools: []string{"echo"}, Params: map[string]string{"text": "hello world"}},
		{ID: "2", Title: "Again", Tools: []string{"echo"}, Params: map[string]string{"text": "bye"}},
	}}
	history := &memHistory{}

	var streamed []plan.EventType
	a := NewAssistant(fixedPlanner{pl}, testEngine(), history, nil, nil)
	a.Observe = func(chatID string) engine.Observer {
		return engine.ObserverFunc(func(ctx context.Context, evt plan.Event) error {
			streamed = append(streamed, evt.Type)
			return nil
		})
	}

	resp, err := a.Think(context.Background(), "c1", "greet me")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp, "PLAN EXECUTED") || !strings.Contains(resp, "bye") {
		t.Errorf("unexpected reply: %q", resp)
	}
	if len(streamed) != 5 || streamed[4] != plan.EventPlanCompleted {
		t.Errorf("unexpected events: %v", streamed)
	}
	if len(history.msgs) != 2 || history.msgs[0] != "human:greet me" {
		t.Errorf("unexpected history: %v", history.msgs)
	}
}

func TestAssistantDirectAnswerReply(t *testing.T) {
	a := NewAssistant(fixedPlanner{directAnswer("", "hi", "Hello there")}, testEngine(), nil, nil, nil)
	resp, err := a.Think(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "Hello there" {
		t.Errorf("got %q", resp)
	}
}

func TestReplyTruncatesOnRuneBoundary(t *testing.T) {
	pl := &plan.Plan{FinalSummary: "done", Steps: []plan.Step{
		{ID: "1", Status: plan.StepCompleted},
		{ID: "2", Status: plan.StepCompleted, Output: strings.Repeat("a", 2999) + strings.Repeat("✅", 10)},
	}}

	resp := reply(pl)
	if !utf8.ValidString(resp) {
		t.Fatalf("reply is not valid UTF-8: %q", resp[len(resp)-40:])
	}
	if !strings.HasSuffix(resp, strings.Repeat("a", 2999)+"\n... (truncated)") {
		t.Errorf("unexpected tail: %q", resp[len(resp)-40:])
	}
}

type fakePlanLog struct{ snaps []store.Snapshot }

func (f fakePlanLog) List(ctx context.Context, limit int) ([]store.Snapshot, error) {
	return f.snaps, nil
}

func TestAssistantHistoryCommand(t *testing.T) {
	mk := func(id, chat, title string, status plan.Status) store.Snapshot {
		return store.Snapshot{PlanID: id, ChatID: chat, Title: title, Status: status, CreatedAt: time.Now(),
			Plan: &plan.Plan{ID: id, Steps: []plan.Step{{ID: "1"}, {ID: "1.1", Dynamic: true}}}}
	}
	a := NewAssistant(nil, nil, nil, fakePlanLog{snaps: []store.Snapshot{
		mk("p2", "c1", "deploy", plan.StatusCompleted),
		mk("p2", "c1", "deploy", plan.StatusActive),
		mk("p9", "c2", "other chat", plan.StatusCompleted),
		mk("p1", "c1", "build", plan.StatusError),
	}}, nil)

	resp, err := a.Think(context.Background(), "c1", "/history")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(resp, "deploy") != 1 || !strings.Contains(resp, "build [error]") {
		t.Errorf("unexpected history reply: %q", resp)
	}
	if strings.Contains(resp, "other chat") {
		t.Error("plans of other chats must not be listed")
	}
	if !strings.Contains(resp, "2 steps, 1 dynamic") {
		t.Errorf("missing step counts: %q", resp)
	}
}

type fakeTasks struct {
	pending []store.Task
	marked  []int64
}

func (f *fakeTasks) GetPendingTasks(ctx context.Context) ([]store.Task, error) {
	return f.pending, nil
}

func (f *fakeTasks) MarkTaskRun(ctx context.Context, t store.Task) error {
	f.marked = append(f.marked, t.ID)
	return nil
}

type brainFunc func(ctx context.Context, chatID, input string) (string, error)

func (f brainFunc) Think(ctx context.Context, chatID, input string) (string, error) {
	return f(ctx, chatID, input)
}

type sent struct{ chatID, text string }

type fakeMessenger struct{ out []sent }

func (m *fakeMessenger) Send(chatID, text string) error {
	m.out = append(m.out, sent{chatID, text})
	return nil
}

func TestSchedulerReplaysDueTasks(t *testing.T) {
	tasks := &fakeTasks{pending: []store.Task{
		{ID: 1, ChatID: "c1", Description: "disk report", IntervalSeconds: 3600},
		{ID: 2, ChatID: "c2", Description: "broken", IntervalSeconds: 60},
	}}
	brain := brainFunc(func(ctx context.Context, chatID, input string) (string, error) {
		if strings.Contains(input, "broken") {
			return "", errors.New("planner down")
		}
		return "report for " + chatID, nil
	})
	msgr := &fakeMessenger{}

	s := NewScheduler(brain, tasks, msgr)
	s.pollAndExecute(context.Background())

	if len(tasks.marked) != 2 {
		t.Errorf("every due task is rescheduled, got %v", tasks.marked)
	}
	if len(msgr.out) != 1 || msgr.out[0].chatID != "c1" || !strings.Contains(msgr.out[0].text, "report for c1") {
		t.Errorf("unexpected messages: %+v", msgr.out)
	}
}
