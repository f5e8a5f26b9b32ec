package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/allowork/allowork/libs/db"
	otelx "github.com/allowork/allowork/libs/otel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// Repository stores events until the publisher drains them.
type Repository interface {
	Insert(ctx context.Context, evt Event) error
	// Drain hands up to limit unpublished records to fn and marks them
	// published when fn succeeds.
	Drain(ctx context.Context, limit int, fn func([]Record) error) (int, error)
}

// PostgresRepository keeps events in the outbox_events table.
type PostgresRepository struct {
	pool *db.Pool
}

func NewPostgresRepository(pool *db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS outbox_events (
    id             BIGSERIAL PRIMARY KEY,
    event_id       UUID NOT NULL UNIQUE,
    aggregate_type TEXT NOT NULL,
    aggregate_id   TEXT NOT NULL,
    event_type     TEXT NOT NULL,
    payload        JSONB NOT NULL,
    traceparent    TEXT NOT NULL DEFAULT '',
    tracestate     TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    published_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS outbox_events_unpublished_idx ON outbox_events (id) WHERE published_at IS NULL;
`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *PostgresRepository) Insert(ctx context.Context, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Parent, tc.State)
	return err
}

func (r *PostgresRepository) Drain(ctx context.Context, limit int, fn func([]Record) error) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}
		records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
			var rcd Record
			err := row.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt)
			return rcd, err
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		ids := make([]int64, 0, len(records))
		for _, rcd := range records {
			ids = append(ids, rcd.ID)
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
			return err
		}
		n = len(records)
		return nil
	})
	return n, err
}

// MemoryRepository is a bounded in-process outbox used with the memory store.
// When full, the oldest unpublished events are dropped.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	pending []Record
	max     int
	dropped int
}

func NewMemoryRepository(max int) *MemoryRepository {
	if max <= 0 {
		max = 10000
	}
	return &MemoryRepository{max: max}
}

func (r *MemoryRepository) Insert(ctx context.Context, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.pending = append(r.pending, Record{
		ID:            r.nextID,
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   tc.Parent,
		Tracestate:    tc.State,
		CreatedAt:     time.Now().UTC(),
	})
	if over := len(r.pending) - r.max; over > 0 {
		r.pending = r.pending[over:]
		r.dropped += over
	}
	return nil
}

func (r *MemoryRepository) Drain(_ context.Context, limit int, fn func([]Record) error) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(limit, len(r.pending))
	if n == 0 {
		return 0, nil
	}
	batch := append([]Record(nil), r.pending[:n]...)
	if err := fn(batch); err != nil {
		return 0, err
	}
	r.pending = r.pending[n:]
	return n, nil
}

// Pending returns a copy of the unpublished records.
func (r *MemoryRepository) Pending() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.pending...)
}

// Dropped reports how many events were evicted by the size bound.
func (r *MemoryRepository) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
