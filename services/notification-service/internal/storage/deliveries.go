package storage

import (
	"context"
	"sync"
	"time"

	"github.com/allowork/allowork/libs/db"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Delivery is one attempt to deliver a notification on one channel.
type Delivery struct {
	NotificationID string
	UserID         string
	Channel        string
	Recipient      string
	ProviderID     string
	Status         string
	Error          string
	AttemptedAt    time.Time
}

// Recorder stores delivery outcomes.
type Recorder interface {
	Insert(ctx context.Context, d Delivery) error
}

const schema = `
CREATE TABLE IF NOT EXISTS notification_deliveries (
	id              BIGSERIAL PRIMARY KEY,
	notification_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	channel         TEXT NOT NULL,
	recipient       TEXT NOT NULL,
	provider_id     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	attempted_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS notification_deliveries_notification_idx
	ON notification_deliveries (notification_id)`

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

func (r *Repository) Insert(ctx context.Context, d Delivery) error {
	if d.AttemptedAt.IsZero() {
		d.AttemptedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries
			(notification_id, user_id, channel, recipient, provider_id, status, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.NotificationID, d.UserID, d.Channel, d.Recipient, d.ProviderID, d.Status, d.Error, d.AttemptedAt)
	return err
}

// Memory keeps deliveries in process; used when no database is configured
// and in tests.
type Memory struct {
	mu   sync.Mutex
	list []Delivery
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.AttemptedAt.IsZero() {
		d.AttemptedAt = time.Now().UTC()
	}
	m.list = append(m.list, d)
	return nil
}

func (m *Memory) List() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.list...)
}
