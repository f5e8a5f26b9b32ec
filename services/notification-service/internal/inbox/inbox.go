// Package inbox records consumed event ids so redelivered events are
// processed once.
package inbox

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/allowork/allowork/libs/db"
	"github.com/jackc/pgx/v5/pgconn"
)

// Inbox reports whether an event id is seen for the first time.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
	event_id    TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}

// Memory keeps the most recent max event ids. Older ids are forgotten, so a
// very late redelivery may be processed twice.
type Memory struct {
	mu    sync.Mutex
	max   int
	order *list.List
	seen  map[string]*list.Element
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 10000
	}
	return &Memory{max: max, order: list.New(), seen: map[string]*list.Element{}}
}

func (m *Memory) Record(_ context.Context, eventID string, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = m.order.PushBack(eventID)
	for m.order.Len() > m.max {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.seen, oldest.Value.(string))
	}
	return true, nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
