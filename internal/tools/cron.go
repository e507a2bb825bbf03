package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/synapse/internal/store"
)

type CronStore interface {
	AddTask(ctx context.Context, chatID string, description string, intervalSeconds int) error
	ListTasks(ctx context.Context, chatID string) ([]store.Task, error)
	DeleteTask(ctx context.Context, chatID string, id int64) error
	ClearTasks(ctx context.Context, chatID string) error
}

// CronTool stores a request that the scheduler replays through a new plan.
type CronTool struct {
	Store CronStore
}

func NewCronTool(store CronStore) *CronTool {
	return &CronTool{Store: store}
}

func (c *CronTool) Name() string {
	return "schedule_task"
}

func (c *CronTool) Description() string {
	return "Manage recurring requests (params: action=schedule|list|delete|clear, task_description, task_id, interval_seconds >= 60)."
}

func (c *CronTool) Kind() Kind {
	return KindDirect
}

func (c *CronTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	chatID, ok := ChatIDFrom(ctx)
	if !ok {
		return "", fmt.Errorf("missing chat id in context")
	}

	switch params["action"] {
	case "clear":
		if err := c.Store.ClearTasks(ctx, chatID); err != nil {
			return "", fmt.Errorf("failed to clear tasks: %w", err)
		}
		return "Successfully cleared all your scheduled tasks.", nil

	case "schedule":
		desc := params["task_description"]
		if desc == "" {
			return "", fmt.Errorf("task_description is required")
		}
		interval, err := strconv.Atoi(params["interval_seconds"])
		if err != nil {
			return "", fmt.Errorf("interval_seconds: %w", err)
		}
		if interval < 60 {
			return "", fmt.Errorf("minimum interval is 60 seconds, got %d", interval)
		}
		if err := c.Store.AddTask(ctx, chatID, desc, interval); err != nil {
			return "", fmt.Errorf("failed to schedule task: %w", err)
		}
		return fmt.Sprintf("Successfully scheduled task: '%s' every %d seconds.", desc, interval), nil

	case "list":
		tasks, err := c.Store.ListTasks(ctx, chatID)
		if err != nil {
			return "", fmt.Errorf("failed to list tasks: %w", err)
		}
		if len(tasks) == 0 {
			return "You have no scheduled tasks.", nil
		}
		var b strings.Builder
		for _, t := range tasks {
			fmt.Fprintf(&b, "#%d every %s (next %s): %s\n",
				t.ID, time.Duration(t.IntervalSeconds)*time.Second, t.NextRun.Format(time.DateTime), t.Description)
		}
		return b.String(), nil

	case "delete":
		id, err := strconv.ParseInt(strings.TrimPrefix(params["task_id"], "#"), 10, 64)
		if err != nil {
			return "", fmt.Errorf("task_id: %w", err)
		}
		if err := c.Store.DeleteTask(ctx, chatID, id); err != nil {
			return "", fmt.Errorf("failed to delete task %d: %w", id, err)
		}
		return fmt.Sprintf("Deleted scheduled task #%d.", id), nil

	default:
		return "", fmt.Errorf("invalid action %q: use schedule, list, delete or clear", params["action"])
	}
}
