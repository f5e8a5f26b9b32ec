package outbox

import (
	"context"
	"log/slog"
)

// Emitter records domain events after the state change they describe has
// been stored. The insert is not transactional with the store write, so a
// failed insert is logged and the request still succeeds. A nil Emitter
// discards events.
type Emitter struct {
	repo   Repository
	logger *slog.Logger
}

func NewEmitter(repo Repository, logger *slog.Logger) *Emitter {
	return &Emitter{repo: repo, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) {
	if e == nil || e.repo == nil {
		return
	}
	evt, err := NewEvent(aggregateType, aggregateID, eventType, payload)
	if err == nil {
		err = e.repo.Insert(ctx, evt)
	}
	if err != nil {
		e.logger.Error("outbox insert failed", "event_type", eventType, "aggregate_id", aggregateID, "err", err)
	}
}
