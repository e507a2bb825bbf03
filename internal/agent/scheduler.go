package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rahul/synapse/internal/store"
)

type Messenger interface {
	Send(chatID string, text string) error
}

type TaskStore interface {
	GetPendingTasks(ctx context.Context) ([]store.Task, error)
	MarkTaskRun(ctx context.Context, t store.Task) error
}

// Scheduler replays due scheduled requests. Every run builds a fresh plan.
type Scheduler struct {
	Brain    Brain
	Store    TaskStore
	Gateway  Messenger
	Interval time.Duration
}

func NewScheduler(brain Brain, store TaskStore, gateway Messenger) *Scheduler {
	return &Scheduler{
		Brain:    brain,
		Store:    store,
		Gateway:  gateway,
		Interval: 30 * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Task scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	tasks, err := s.Store.GetPendingTasks(ctx)
	if err != nil {
		log.Printf("Error polling tasks: %v", err)
		return
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Executing scheduled task %d for chat %s: %s", t.ID, t.ChatID, t.Description)

		// Mark first so a slow or failing run is not replayed on every tick.
		if err := s.Store.MarkTaskRun(ctx, t); err != nil {
			log.Printf("Error updating next run for task %d: %v", t.ID, err)
			continue
		}

		response, err := s.Brain.Think(ctx, t.ChatID, fmt.Sprintf("[SYSTEM: This is the execution of a previously scheduled task: %q. Provide the output for the user. DO NOT schedule it again.]", t.Description))
		if err != nil {
			log.Printf("Error executing scheduled task %d: %v", t.ID, err)
			continue
		}

		if s.Gateway != nil {
			if err := s.Gateway.Send(t.ChatID, "⏰ *Scheduled Task Output*\n\n"+response); err != nil {
				log.Printf("Error delivering task %d output: %v", t.ID, err)
			}
		}
	}
}
