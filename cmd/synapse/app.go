package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/synapse/internal/agent"
	"github.com/rahul/synapse/internal/analysis"
	"github.com/rahul/synapse/internal/engine"
	"github.com/rahul/synapse/internal/expansion"
	"github.com/rahul/synapse/internal/gateway"
	"github.com/rahul/synapse/internal/governance"
	"github.com/rahul/synapse/internal/observability"
	"github.com/rahul/synapse/internal/store"
	"github.com/rahul/synapse/internal/tools"
	"github.com/rahul/synapse/pkg/config"
)

// app holds everything both serve and run need.
type app struct {
	cfg      *config.Config
	db       *store.DB
	history  *store.HistoryStore
	memory   *store.ExecutionMemory
	registry *tools.Registry
	browser  *tools.BrowserTool
	model    llms.Model
	logger   *observability.Logger
	prompts  *agent.PromptManager
	engine   *engine.Orchestrator
	nc       *nats.Conn
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  observability.NewLoggerTo(observability.NewTermWriter(), "logs"),
		prompts: agent.NewPromptManager(cfg.App.Prompts),
	}

	if err := os.MkdirAll(cfg.App.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	db, err := store.Open(ctx, cfg.Memory.Driver, cfg.Memory.Source())
	if err != nil {
		return nil, err
	}
	a.db = db
	a.history = store.NewHistoryStore(db)
	a.memory = store.NewExecutionMemory(db)

	gov, err := governance.NewPolicyEngine(cfg.Governance.DenyTools, cfg.Governance.DenyArguments)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.model, err = newModel(cfg)
	if err != nil {
		log.Printf("Warning: %v; the llm tool and planner are disabled", err)
	}

	a.registry = tools.NewRegistry(
		tools.WithTimeouts(cfg.Engine.DirectTimeout.Std(), cfg.Engine.RemoteTimeout.Std()),
		tools.WithPolicy(gov),
	)
	a.registerTools()

	var observer engine.Observer
	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL, nats.Name(cfg.App.Name))
		if err != nil {
			log.Printf("Warning: NATS unavailable at %s: %v", cfg.Events.NATSURL, err)
		} else {
			a.nc = nc
			observer = engine.NewNATSObserver(nc, cfg.Events.SubjectPrefix)
			log.Printf("Publishing plan events to %s.<plan>", cfg.Events.SubjectPrefix)
		}
	}

	analyzer := analysis.NewDefault(analysis.WithMaxSuggested(cfg.Engine.MaxStepsPerExpansion))
	expCfg := expansionConfig(cfg)
	expCfg.DynamicTools = registered(a.registry, expCfg.DynamicTools)
	policy := expansion.New(expCfg)

	a.engine = engine.New(a.registry, analyzer, policy,
		engine.WithLogger(a.logger),
		engine.WithMemory(a.memory),
		engine.WithObserver(observer),
	)
	return a, nil
}

func (a *app) registerTools() {
	cfg := a.cfg
	a.registry.Register(tools.NewEchoTool())
	a.registry.Register(tools.NewFilesystemTool(cfg.App.Workspace))
	a.registry.Register(tools.NewShellTool(cfg.App.Workspace))
	a.registry.Register(tools.NewSystemTool(cfg.App.Workspace))
	a.registry.Register(tools.NewScraperTool())
	a.registry.Register(tools.NewCronTool(a.history))

	a.browser = tools.NewBrowserTool(cfg.Headless(), filepath.Join(cfg.App.Workspace, "screenshots"))
	a.registry.Register(a.browser)

	if search, err := tools.NewSearchTool(5); err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		a.registry.Register(search)
	}

	if a.model != nil {
		system, err := a.prompts.GetWorkerPrompt()
		if err != nil {
			log.Printf("Warning: %v", err)
		}
		a.registry.Register(tools.NewLLMTool(a.model, system))
	}
}

// planner prefers the model and falls back to the fixed template.
func (a *app) planner() agent.Planner {
	template := &agent.TemplatePlanner{Tools: a.registry}
	if a.model == nil {
		return template
	}
	return &agent.FallbackPlanner{
		Primary:   agent.NewLLMPlanner(a.model, a.registry, a.history, a.prompts, a.logger),
		Secondary: template,
	}
}

// assistant streams plan progress to chats through router.
func (a *app) assistant(router *gateway.Router) *agent.Assistant {
	brain := agent.NewAssistant(a.planner(), a.engine, a.history, a.memory, a.logger)
	brain.Observe = gateway.ChatObservers(router)
	return brain
}

func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			log.Printf("Error draining NATS: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}
}

func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	switch name {
	case "":
		return nil, fmt.Errorf("no enabled provider in config")
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func expansionConfig(cfg *config.Config) expansion.Config {
	e := cfg.Engine
	return expansion.Config{
		MaxDynamicSteps:     e.MaxDynamicSteps,
		ConfidenceThreshold: e.ConfidenceThreshold,
		MediumAcceptance:    e.MediumAcceptance,
		LowAcceptance:       e.LowAcceptance,
		DynamicTools:        e.DynamicTools,
	}
}

// registered keeps the names the registry knows, falling back to echo so
// generated steps never reference a missing tool.
func registered(r *tools.Registry, names []string) []string {
	var out []string
	for _, n := range names {
		if r.Get(n) != nil {
			out = append(out, n)
		} else {
			log.Printf("Warning: dynamic tool %q is not registered", n)
		}
	}
	if len(out) == 0 {
		out = []string{"echo"}
	}
	return out
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		log.Printf("Warning: %s not found, using defaults", path)
		cfg = &config.Config{}
		cfg.ApplyEnv()
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return nil, err
}

func ticker(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
