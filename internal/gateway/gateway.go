package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/rahul/synapse/internal/engine"
	"github.com/rahul/synapse/internal/plan"
)

// Sender delivers a message to a chat. Both gateways and the Router are
// Senders.
type Sender interface {
	Send(chatID string, text string) error
}

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start runs the message listening loop until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Sender
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Router sends to whichever gateway owns a chat id. Chat ids are prefixed
// with the gateway name, e.g. "discord:1234"; bare ids belong to Telegram.
type Router struct {
	gateways map[string]Messenger
}

func NewRouter() *Router {
	return &Router{gateways: make(map[string]Messenger)}
}

func (r *Router) Add(name string, m Messenger) {
	r.gateways[name] = m
}

func (r *Router) Send(chatID string, text string) error {
	name, id := splitChatID(chatID)
	m, ok := r.gateways[name]
	if !ok {
		return fmt.Errorf("no gateway %q for chat %s", name, chatID)
	}
	return m.Send(id, text)
}

func splitChatID(chatID string) (gateway, id string) {
	if name, id, ok := strings.Cut(chatID, ":"); ok {
		return name, id
	}
	return "telegram", chatID
}

// ChatObserver streams plan progress into a chat. The final answer is sent
// by the gateway itself, so plan_completed is not forwarded.
type ChatObserver struct {
	Messenger Sender
	ChatID    string
}

func (c *ChatObserver) Observe(ctx context.Context, evt plan.Event) error {
	text := progressMessage(evt)
	if text == "" {
		return nil
	}
	return c.Messenger.Send(c.ChatID, text)
}

// ChatObservers returns a factory suitable for agent.Assistant.Observe.
func ChatObservers(m Sender) func(chatID string) engine.Observer {
	return func(chatID string) engine.Observer {
		return &ChatObserver{Messenger: m, ChatID: chatID}
	}
}

func progressMessage(evt plan.Event) string {
	switch evt.Type {
	case plan.EventStepCompleted:
		return fmt.Sprintf("✅ Step %d/%d done: %s (%.0f%%)", evt.CurrentStep, evt.TotalSteps, evt.Title, evt.Progress)
	case plan.EventStepFailed:
		return fmt.Sprintf("❌ Step %d/%d failed: %s\n%s", evt.CurrentStep, evt.TotalSteps, evt.Title, evt.Error)
	case plan.EventPlanExpanded:
		return fmt.Sprintf("🧩 Added %d step(s) after step %s: %s", evt.NewStepCount, evt.StepID, evt.Reason)
	case plan.EventPlanCancelled:
		return "🛑 Plan cancelled: " + evt.Error
	default:
		return ""
	}
}

// chunk splits text into pieces of at most limit bytes, preferring line
// breaks and never cutting a UTF-8 sequence.
func chunk(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" || len(out) == 0 {
		out = append(out, text)
	}
	return out
}

func logIncoming(gateway, user, text string) {
	log.Printf("[%s] %s: %s", gateway, user, text)
}
