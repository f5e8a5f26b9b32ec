package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/allowork/allowork/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPublishBatchWritesAndDrains(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(10)
	evt, err := NewEvent("booking", "b9", TopicBookingCreated, map[string]string{"booking_id": "b9"})
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, evt))

	w := &fakeWriter{}
	p := NewPublisher(repo, w, testLogger(), PublisherConfig{BatchSize: 5})
	n, err := p.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicBookingCreated, msg.Topic)
	assert.Equal(t, "b9", string(msg.Key))
	assert.JSONEq(t, `{"booking_id":"b9"}`, string(msg.Value))
	meta := kafkax.ExtractEventMeta(msg)
	assert.Equal(t, TopicBookingCreated, meta.EventType)
	assert.NotEmpty(t, meta.EventID)
	assert.Empty(t, repo.Pending())
}

func TestPublishBatchKeepsEventsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(10)
	require.NoError(t, repo.Insert(ctx, Event{EventType: TopicMessageSent, AggregateID: "c1", Payload: []byte(`{}`)}))

	p := NewPublisher(repo, &fakeWriter{err: errors.New("broker down")}, testLogger(), PublisherConfig{})
	_, err := p.PublishBatch(ctx)
	require.Error(t, err)
	assert.Len(t, repo.Pending(), 1)
}

func TestMemoryRepositoryIsBounded(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(2)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Insert(ctx, Event{EventType: TopicMessageSent, AggregateID: id, Payload: []byte(`{}`)}))
	}
	pending := repo.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].AggregateID)
	assert.Equal(t, 1, repo.Dropped())
}

func TestNewPublisherWithoutWriter(t *testing.T) {
	assert.Nil(t, NewPublisher(NewMemoryRepository(1), nil, testLogger(), PublisherConfig{}))
}

func TestEmitter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(10)
	e := NewEmitter(repo, testLogger())
	e.Emit(ctx, "request", "r9", TopicRequestPosted, map[string]int{"notified": 2})

	pending := repo.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "request", pending[0].AggregateType)
	assert.JSONEq(t, `{"notified":2}`, string(pending[0].Payload))

	var nilEmitter *Emitter
	nilEmitter.Emit(ctx, "request", "r9", TopicRequestPosted, nil)
}
