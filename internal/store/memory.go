package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/synapse/internal/plan"
)

// Snapshot is one row of the execution memory.
type Snapshot struct {
	Seq       int64
	PlanID    string
	ChatID    string
	Title     string
	Status    plan.Status
	CreatedAt time.Time
	Plan      *plan.Plan
}

// ExecutionMemory is an append-only log of plan snapshots. Records are never
// updated; re-running a plan adds a new row and Get returns the newest.
type ExecutionMemory struct {
	db *DB
}

func NewExecutionMemory(db *DB) *ExecutionMemory {
	return &ExecutionMemory{db: db}
}

// Append stores a full snapshot of p under planID.
func (m *ExecutionMemory) Append(ctx context.Context, planID string, p *plan.Plan) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = m.db.exec(ctx,
		`INSERT INTO plan_snapshots (plan_id, chat_id, title, status, snapshot, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		planID, p.ChatID, p.Title, string(p.Status), string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("append snapshot %s: %w", planID, err)
	}
	return nil
}

// Get returns the latest snapshot recorded for planID.
func (m *ExecutionMemory) Get(ctx context.Context, planID string) (*plan.Plan, error) {
	var data string
	err := m.db.queryRow(ctx,
		`SELECT snapshot FROM plan_snapshots WHERE plan_id = ? ORDER BY id DESC LIMIT 1`, planID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return plan.Unmarshal([]byte(data))
}

// List returns the most recent snapshots, newest first.
func (m *ExecutionMemory) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.query(ctx,
		`SELECT id, plan_id, chat_id, title, status, snapshot, created_at FROM plan_snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s       Snapshot
			status  string
			data    string
			created int64
		)
		if err := rows.Scan(&s.Seq, &s.PlanID, &s.ChatID, &s.Title, &status, &data, &created); err != nil {
			return nil, err
		}
		s.Status = plan.Status(status)
		s.CreatedAt = time.UnixMilli(created)
		if s.Plan, err = plan.Unmarshal([]byte(data)); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
