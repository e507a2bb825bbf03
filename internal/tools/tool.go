package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rahul/synapse/internal/governance"
)

// Kind separates in-process tools from tools that leave the process.
type Kind string

const (
	KindDirect Kind = "direct"
	KindRemote Kind = "remote"
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrTimeout      = errors.New("tool call timed out")
	ErrDenied       = errors.New("tool call denied by policy")
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Kind() Kind
	Execute(ctx context.Context, params map[string]string) (string, error)
}

// Result is the outcome of a successful dispatch.
type Result struct {
	Text     string
	Duration time.Duration
}

type contextKey string

const (
	chatIDKey contextKey = "chat_id"
	planIDKey contextKey = "plan_id"
)

// WithChatID attaches the originating chat to ctx for tools that need it.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// ChatIDFrom returns the chat attached by WithChatID.
func ChatIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(chatIDKey).(string)
	return id, ok && id != ""
}

// WithPlanID attaches the running plan to ctx.
func WithPlanID(ctx context.Context, planID string) context.Context {
	return context.WithValue(ctx, planIDKey, planID)
}

func planIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(planIDKey).(string)
	return id
}

// Registry dispatches tool calls by name. It enforces a per-call timeout
// and consults the governance policy; retries are left to the tools.
// Registry is safe for concurrent use by many plans.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]Tool
	policy        governance.PolicyEngine
	directTimeout time.Duration
	remoteTimeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeouts sets the per-call limit for each tool kind.
func WithTimeouts(direct, remote time.Duration) Option {
	return func(r *Registry) {
		if direct > 0 {
			r.directTimeout = direct
		}
		if remote > 0 {
			r.remoteTimeout = remote
		}
	}
}

// WithPolicy installs the policy consulted before each dispatch.
func WithPolicy(p governance.PolicyEngine) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:         make(map[string]Tool),
		directTimeout: 30 * time.Second,
		remoteTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Timeout returns the per-call limit applied to t.
func (r *Registry) Timeout(t Tool) time.Duration {
	if t.Kind() == KindRemote {
		return r.remoteTimeout
	}
	return r.directTimeout
}

// Invoke runs the named tool. The call returns no later than the per-call
// timeout even if the tool ignores its context; a timeout is reported as
// ErrTimeout like any other tool failure.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]string) (Result, error) {
	ctx, span := otel.Tracer("synapse/tools").Start(ctx, "tool.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	res, err := r.invoke(ctx, name, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (r *Registry) invoke(ctx context.Context, name string, params map[string]string) (Result, error) {
	t := r.Get(name)
	if t == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if r.policy != nil {
		chatID, _ := ChatIDFrom(ctx)
		decision, err := r.policy.Evaluate(ctx, governance.Request{
			Tool:   name,
			Params: params,
			PlanID: planIDFrom(ctx),
			ChatID: chatID,
		})
		if err != nil {
			return Result{}, fmt.Errorf("policy check for %s: %w", name, err)
		}
		if decision.Effect == governance.EffectDeny {
			return Result{}, fmt.Errorf("%w: %s", ErrDenied, decision.Reason)
		}
	}

	timeout := r.Timeout(t)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", name, p)}
			}
		}()
		text, err := t.Execute(callCtx, params)
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		elapsed := time.Since(start)
		if o.err != nil {
			return Result{Duration: elapsed}, o.err
		}
		return Result{Text: o.text, Duration: elapsed}, nil
	case <-callCtx.Done():
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			return Result{Duration: elapsed}, ctx.Err()
		}
		return Result{Duration: elapsed}, fmt.Errorf("%w: %s after %v", ErrTimeout, name, timeout)
	}
}
