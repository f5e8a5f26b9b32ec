package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/allowork/allowork/libs/kafkax"
	otelx "github.com/allowork/allowork/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	repo      Repository
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// NewPublisher returns a publisher, or nil when writer is nil so callers can
// skip Run without a separate flag.
func NewPublisher(repo Repository, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if writer == nil {
		return nil
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		repo:      repo,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch publishes one batch and returns how many events went out.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	return p.repo.Drain(ctx, p.batchSize, func(records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgCtx := otelx.TraceContext{Parent: r.Traceparent, State: r.Tracestate}.Context(ctx)
			meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType, OccurredAt: r.CreatedAt}
			msgs = append(msgs, kafka.Message{
				Topic:   r.EventType,
				Key:     []byte(r.AggregateID),
				Value:   r.Payload,
				Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
			})
		}
		return p.writer.WriteMessages(ctx, msgs...)
	})
}
