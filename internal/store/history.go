package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Task is a recurring request replayed by the scheduler.
type Task struct {
	ID              int64
	ChatID          string
	Description     string
	IntervalSeconds int
	NextRun         time.Time
}

type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (h *HistoryStore) AddMessage(ctx context.Context, chatID string, role string, content string) error {
	_, err := h.db.exec(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		chatID, role, content, time.Now().UnixMilli())
	return err
}

// AddTask schedules a request. It first runs on the next scheduler tick.
func (h *HistoryStore) AddTask(ctx context.Context, chatID string, description string, intervalSeconds int) error {
	_, err := h.db.exec(ctx,
		`INSERT INTO tasks (chat_id, task_description, interval_seconds, next_run) VALUES (?, ?, ?, ?)`,
		chatID, description, intervalSeconds, time.Now().Unix())
	return err
}

func (h *HistoryStore) GetPendingTasks(ctx context.Context) ([]Task, error) {
	rows, err := h.db.query(ctx, `
		SELECT id, chat_id, task_description, interval_seconds, next_run
		FROM tasks
		WHERE status = 'active' AND next_run <= ?
		ORDER BY id`, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var next int64
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Description, &t.IntervalSeconds, &next); err != nil {
			return nil, err
		}
		t.NextRun = time.Unix(next, 0)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskRun pushes the next run of a task one interval into the future.
func (h *HistoryStore) MarkTaskRun(ctx context.Context, t Task) error {
	next := time.Now().Add(time.Duration(t.IntervalSeconds) * time.Second).Unix()
	_, err := h.db.exec(ctx, `UPDATE tasks SET next_run = ? WHERE id = ?`, next, t.ID)
	return err
}

func (h *HistoryStore) ListTasks(ctx context.Context, chatID string) ([]Task, error) {
	rows, err := h.db.query(ctx, `
		SELECT id, chat_id, task_description, interval_seconds, next_run
		FROM tasks WHERE chat_id = ? AND status = 'active' ORDER BY id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var next int64
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Description, &t.IntervalSeconds, &next); err != nil {
			return nil, err
		}
		t.NextRun = time.Unix(next, 0)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (h *HistoryStore) DeleteTask(ctx context.Context, chatID string, id int64) error {
	res, err := h.db.exec(ctx, `DELETE FROM tasks WHERE chat_id = ? AND id = ?`, chatID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

func (h *HistoryStore) ClearTasks(ctx context.Context, chatID string) error {
	_, err := h.db.exec(ctx, `DELETE FROM tasks WHERE chat_id = ?`, chatID)
	return err
}

func (h *HistoryStore) GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error) {
	rows, err := h.db.query(ctx,
		`SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.TextParts(msgRole, content))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}
