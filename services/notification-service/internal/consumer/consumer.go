// Package consumer reads marketplace events from Kafka and hands each new
// event to a handler.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/allowork/allowork/libs/kafkax"
	"github.com/allowork/allowork/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader     Reader
	logger     *slog.Logger
	inbox      inbox.Inbox
	handler    Handler
	retryDelay time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inboxRepo inbox.Inbox, cfg Config, handler Handler) *Consumer {
	return NewWithReader(logger, inboxRepo, kafkax.NewReader(cfg.Brokers, cfg.GroupID, cfg.Topic), handler)
}

func NewWithReader(logger *slog.Logger, inboxRepo inbox.Inbox, reader Reader, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger,
		inbox:      inboxRepo,
		handler:    handler,
		retryDelay: time.Second,
	}
}

// Run consumes until ctx is done. Handler errors are logged; the event stays
// recorded in the inbox.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
}
