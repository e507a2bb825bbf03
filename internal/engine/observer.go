package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/rahul/synapse/internal/plan"
)

// Observer receives the execution events of one plan, in order. Errors are
// logged by the publisher and never reach the orchestrator.
type Observer interface {
	Observe(ctx context.Context, evt plan.Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, evt plan.Event) error

func (f ObserverFunc) Observe(ctx context.Context, evt plan.Event) error {
	return f(ctx, evt)
}

type multiObserver []Observer

// Multi fans each event out to every non-nil observer in turn.
func Multi(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) Observe(ctx context.Context, evt plan.Event) error {
	var errs []error
	for _, o := range m {
		if err := o.Observe(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JSONObserver writes each event as one JSON line.
type JSONObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONObserver(w io.Writer) *JSONObserver {
	return &JSONObserver{enc: json.NewEncoder(w)}
}

func (j *JSONObserver) Observe(ctx context.Context, evt plan.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(evt)
}

// NATSObserver publishes events to "<prefix>.<plan id>" so that external
// consumers can follow a plan with a single subscription.
type NATSObserver struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSObserver(conn *nats.Conn, prefix string) *NATSObserver {
	if prefix == "" {
		prefix = "synapse.events"
	}
	return &NATSObserver{conn: conn, prefix: prefix}
}

// Subject returns the subject events of planID are published on.
func (n *NATSObserver) Subject(planID string) string {
	return n.prefix + "." + planID
}

func (n *NATSObserver) Observe(ctx context.Context, evt plan.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", evt.Seq, err)
	}
	if err := n.conn.Publish(n.Subject(evt.PlanID), data); err != nil {
		return fmt.Errorf("publish event %d: %w", evt.Seq, err)
	}
	return nil
}
