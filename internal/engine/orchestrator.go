// Package engine drives plans step by step: it dispatches tools, analyzes
// their output, expands the plan when the analysis calls for it, and streams
// ordered events to an observer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rahul/synapse/internal/analysis"
	"github.com/rahul/synapse/internal/expansion"
	"github.com/rahul/synapse/internal/observability"
	"github.com/rahul/synapse/internal/plan"
	"github.com/rahul/synapse/internal/tools"
)

var (
	ErrPlanBusy    = errors.New("plan is already running")
	ErrInvalidPlan = errors.New("invalid plan")
)

// Dispatcher invokes a tool by name. *tools.Registry implements it.
type Dispatcher interface {
	Invoke(ctx context.Context, name string, params map[string]string) (tools.Result, error)
}

// Memory is the append-only sink for finished plans.
type Memory interface {
	Append(ctx context.Context, planID string, snapshot *plan.Plan) error
}

// Orchestrator runs plans. One Orchestrator may run many plans
// concurrently; each plan is driven by its own Run call and its steps never
// overlap.
type Orchestrator struct {
	tools    Dispatcher
	analyzer analysis.Analyzer
	policy   *expansion.Policy
	memory   Memory
	logger   *observability.Logger
	observer Observer
	drain    time.Duration
	tracer   trace.Tracer

	mu      sync.Mutex
	running map[string]bool
}

type Option func(*Orchestrator)

// WithMemory sets where finished plans are appended.
func WithMemory(m Memory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

func WithLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver adds an observer that receives the events of every plan, in
// addition to the one passed to Run.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithDrainTimeout bounds how long Run waits for observers to catch up
// before returning.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.drain = d
		}
	}
}

func New(dispatcher Dispatcher, analyzer analysis.Analyzer, policy *expansion.Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tools:    dispatcher,
		analyzer: analyzer,
		policy:   policy,
		drain:    5 * time.Second,
		tracer:   otel.Tracer("synapse/engine"),
		running:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes p to the end and hands the result to memory. Step and tool
// failures are recorded on the plan and never returned; the returned error
// reports invalid input, a concurrent run of the same plan, cancellation,
// or a memory write failure.
//
// Steps already in a terminal status are skipped, so a snapshot of an
// interrupted run can be resumed.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, obs Observer) (err error) {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if verr := p.Validate(); verr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, verr)
	}
	if !o.claim(p.ID) {
		return fmt.Errorf("%w: %s", ErrPlanBusy, p.ID)
	}
	defer o.release(p.ID)

	ctx, span := o.tracer.Start(ctx, "plan.run")
	span.SetAttributes(
		attribute.String("plan.id", p.ID),
		attribute.String("plan.title", p.Title),
		attribute.Int("plan.static_steps", len(p.Steps)),
	)
	defer func() {
		span.SetAttributes(
			attribute.String("plan.status", string(p.Status)),
			attribute.Int("plan.dynamic_steps", p.DynamicCount()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	observability.TrackPlan(p.ID, p.Title)
	defer observability.UntrackPlan(p.ID)

	detached := context.WithoutCancel(ctx)
	pub := NewPublisher(detached, p.ID, Multi(o.observer, obs))
	defer func() {
		drainCtx, cancel := context.WithTimeout(detached, o.drain)
		defer cancel()
		if derr := pub.Close(drainCtx); derr != nil {
			log.Printf("[Engine] %v", derr)
		}
	}()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Status = plan.StatusActive
	start := time.Now()
	log.Printf("[Engine] Plan %s started: %s (%d steps)", p.ID, p.Title, len(p.Steps))

	for i := 0; i < len(p.Steps); i++ {
		if p.Steps[i].Status.Terminal() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		o.runStep(ctx, p, i, pub)
		if ctx.Err() != nil {
			break
		}
		o.expand(p, i, pub)
	}

	if cerr := ctx.Err(); cerr != nil {
		p.Status = plan.StatusError
		p.CompletedAt = time.Now()
		p.FinalSummary = summarize(p, time.Since(start))
		o.emit(p, pub, plan.Event{
			Type:       plan.EventPlanCancelled,
			Status:     string(p.Status),
			Title:      p.Title,
			Error:      cerr.Error(),
			TotalSteps: len(p.Steps),
			Progress:   progress(p),
		})
		log.Printf("[Engine] Plan %s cancelled: %v", p.ID, cerr)
		if merr := o.remember(detached, p); merr != nil {
			return errors.Join(cerr, merr)
		}
		return cerr
	}

	p.Status = plan.StatusCompleted
	p.CompletedAt = time.Now()
	p.FinalSummary = summarize(p, time.Since(start))
	o.emit(p, pub, plan.Event{
		Type:        plan.EventPlanCompleted,
		Status:      string(p.Status),
		Title:       p.Title,
		Output:      p.FinalSummary,
		CurrentStep: len(p.Steps),
		TotalSteps:  len(p.Steps),
		Progress:    progress(p),
	})
	log.Printf("[Engine] Plan %s completed in %s (%d steps, %d dynamic)",
		p.ID, time.Since(start).Round(time.Millisecond), len(p.Steps), p.DynamicCount())

	return o.remember(detached, p)
}

func (o *Orchestrator) claim(planID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[planID] {
		return false
	}
	o.running[planID] = true
	return true
}

func (o *Orchestrator) release(planID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, planID)
}

func (o *Orchestrator) runStep(ctx context.Context, p *plan.Plan, i int, pub *Publisher) {
	step := &p.Steps[i]

	ctx, span := o.tracer.Start(ctx, "step.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.Bool("step.dynamic", step.Dynamic),
		attribute.StringSlice("step.tools", step.Tools),
	)

	step.Status = plan.StepInProgress
	step.StartedAt = time.Now()
	step.Output = ""
	step.Error = ""
	o.emit(p, pub, plan.Event{
		Type:        plan.EventStepStarted,
		StepID:      step.ID,
		Status:      string(step.Status),
		Title:       step.Title,
		CurrentStep: i + 1,
		TotalSteps:  len(p.Steps),
		Progress:    progress(p),
	})
	observability.StepProgress(p.ID, i+1, len(p.Steps))

	toolCtx := tools.WithPlanID(tools.WithChatID(ctx, p.ChatID), p.ID)
	params := resolveParams(p, step)

	var invocations []plan.Invocation
	var failures []string
	for _, name := range step.Tools {
		if err := ctx.Err(); err != nil {
			failures = append(failures, "cancelled: "+err.Error())
			break
		}
		inv := o.invoke(toolCtx, p, name, params)
		if inv.Failed() {
			failures = append(failures, inv.Tool+": "+inv.Error)
		}
		if o.logger != nil {
			o.logger.LogToolResult(p.ChatID, p.ID, step.ID, inv)
		}
		invocations = append(invocations, inv)
	}

	step.Output = formatOutput(i, step, invocations)
	step.CompletedAt = time.Now()

	evtType := plan.EventStepCompleted
	if len(failures) > 0 {
		step.Status = plan.StepError
		step.Error = strings.Join(failures, "; ")
		evtType = plan.EventStepFailed
		span.SetStatus(codes.Error, step.Error)
		log.Printf("[Engine] Plan %s step %s failed: %s", p.ID, step.ID, step.Error)
	} else {
		step.Status = plan.StepCompleted
		log.Printf("[Engine] Plan %s step %s completed in %s", p.ID, step.ID, step.Duration().Round(time.Millisecond))
	}

	o.emit(p, pub, plan.Event{
		Type:        evtType,
		StepID:      step.ID,
		Status:      string(step.Status),
		Title:       step.Title,
		Output:      step.Output,
		Error:       step.Error,
		CurrentStep: i + 1,
		TotalSteps:  len(p.Steps),
		Progress:    progress(p),
	})
}

// invoke turns every outcome of a dispatch, panics included, into an
// Invocation.
func (o *Orchestrator) invoke(ctx context.Context, p *plan.Plan, name string, params map[string]string) (inv plan.Invocation) {
	inv = plan.Invocation{Tool: name, Params: params}
	defer func() {
		if r := recover(); r != nil {
			inv.Error = fmt.Sprintf("tool %s panicked: %v", name, r)
		}
	}()

	res, err := o.tools.Invoke(ctx, name, params)
	inv.Result = res.Text
	inv.Duration = res.Duration
	if err != nil {
		inv.Error = err.Error()
		if errors.Is(err, tools.ErrDenied) && o.logger != nil {
			o.logger.LogPolicyDenied(p.ChatID, p.ID, name, err.Error())
		}
	}
	return inv
}

// expand analyzes the output of step i and splices accepted steps right
// after it, in signal order.
func (o *Orchestrator) expand(p *plan.Plan, i int, pub *Publisher) {
	if o.analyzer == nil || o.policy == nil {
		return
	}
	trigger := p.Steps[i]

	signals, err := o.analyze(trigger.Output)
	if err != nil {
		log.Printf("[Engine] Plan %s step %s: analysis skipped: %v", p.ID, trigger.ID, err)
		return
	}
	if len(signals) == 0 {
		return
	}

	decisions := o.policy.Evaluate(p, &trigger, signals)
	at := i
	for _, d := range decisions {
		if o.logger != nil {
			detail := d.Rejection
			if d.Accepted {
				detail = fmt.Sprintf("%d steps: %s", len(d.Steps), d.Signal.Reason)
			}
			o.logger.LogExpansion(p.ChatID, p.ID, trigger.ID, string(d.Signal.Priority), d.Signal.Confidence, d.Accepted, detail)
		}
		if !d.Accepted {
			continue
		}

		p.Insert(at, d.Steps...)
		at += len(d.Steps)

		ids := make([]string, len(d.Steps))
		for k, s := range d.Steps {
			ids[k] = s.ID
		}
		log.Printf("[Engine] Plan %s expanded after step %s with %v (%s, %.2f)",
			p.ID, trigger.ID, ids, d.Signal.Priority, d.Signal.Confidence)

		o.emit(p, pub, plan.Event{
			Type:         plan.EventPlanExpanded,
			StepID:       trigger.ID,
			Status:       string(p.Status),
			NewStepCount: len(d.Steps),
			NewSteps:     ids,
			Reason:       d.Signal.Reason,
			Confidence:   d.Signal.Confidence,
			CurrentStep:  i + 1,
			TotalSteps:   len(p.Steps),
			Progress:     progress(p),
		})
	}
}

func (o *Orchestrator) analyze(output string) (signals []analysis.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			signals, err = nil, fmt.Errorf("analyzer panicked: %v", r)
		}
	}()
	return o.analyzer.Analyze(output)
}

func (o *Orchestrator) emit(p *plan.Plan, pub *Publisher, evt plan.Event) {
	evt = pub.Publish(evt)
	if o.logger != nil {
		o.logger.LogExecution(p.ChatID, evt)
	}
}

func (o *Orchestrator) remember(ctx context.Context, p *plan.Plan) error {
	if o.memory == nil {
		return nil
	}
	if err := o.memory.Append(ctx, p.ID, p.Clone()); err != nil {
		log.Printf("[Engine] Plan %s not saved: %v", p.ID, err)
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}
