package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/allowork/allowork/libs/kafkax"
	"github.com/allowork/allowork/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceReader serves msgs then blocks until ctx is done.
type sliceReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func message(id string) kafka.Message {
	meta := kafkax.EventMeta{EventID: id, EventType: "marketplace.notification.created.v1"}
	return kafka.Message{Topic: meta.EventType, Value: []byte(`{}`), Headers: meta.Headers()}
}

func TestRunSkipsDuplicates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := &sliceReader{msgs: []kafka.Message{message("e1"), message("e2"), message("e1")}}

	var mu sync.Mutex
	var handled []string
	c := NewWithReader(logger, inbox.NewMemory(10), reader, func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, kafkax.ExtractEventMeta(msg).EventID)
		if len(handled) == 1 {
			return errors.New("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return len(reader.msgs) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"e1", "e2"}, handled)
	assert.True(t, reader.closed)
}
