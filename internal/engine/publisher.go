package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rahul/synapse/internal/plan"
)

// Publisher delivers the events of one plan to one observer. Publish never
// blocks: events go into an unbounded queue drained by a single goroutine,
// so the observer sees them in exactly the order they were published.
type Publisher struct {
	planID string
	obs    Observer
	ctx    context.Context

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []plan.Event
	seq    int
	closed bool
	done   chan struct{}
}

// NewPublisher starts the delivery goroutine. ctx is handed to the observer
// and should outlive the plan run so trailing events still get delivered.
func NewPublisher(ctx context.Context, planID string, obs Observer) *Publisher {
	p := &Publisher{
		planID: planID,
		obs:    obs,
		ctx:    ctx,
		done:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// Publish stamps evt with the plan id, the next sequence number and a
// timestamp, and queues it. Events published after Close are dropped.
func (p *Publisher) Publish(evt plan.Event) plan.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	evt.Seq = p.seq
	evt.PlanID = p.planID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if p.closed {
		return evt
	}
	p.queue = append(p.queue, evt)
	p.cond.Signal()
	return evt
}

// Close stops accepting events and waits until the queue is drained or ctx
// is done, whichever comes first.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Signal()
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain events of plan %s: %w", p.planID, ctx.Err())
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		evt := p.queue[0]
		p.queue[0] = plan.Event{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.deliver(evt)
	}
}

func (p *Publisher) deliver(evt plan.Event) {
	if p.obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Publisher] observer panicked on %s event %d of plan %s: %v", evt.Type, evt.Seq, evt.PlanID, r)
		}
	}()
	if err := p.obs.Observe(p.ctx, evt); err != nil {
		log.Printf("[Publisher] %s event %d of plan %s not delivered: %v", evt.Type, evt.Seq, evt.PlanID, err)
	}
}
