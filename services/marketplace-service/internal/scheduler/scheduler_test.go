package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler"
	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler/schedulertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestInProcessRunsTasksInDueOrder(t *testing.T) {
	clock := schedulertest.NewManualClock()
	s := scheduler.NewInProcess(clock, testLogger())
	defer s.Close()

	var ran []string
	s.Handle(func(_ context.Context, task scheduler.Task) error {
		ran = append(ran, task.Kind)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, s.Schedule(ctx, scheduler.Task{Kind: "c"}, 5*time.Second))
	require.NoError(t, s.Schedule(ctx, scheduler.Task{Kind: "a"}, 1500*time.Millisecond))
	require.NoError(t, s.Schedule(ctx, scheduler.Task{Kind: "b"}, 2500*time.Millisecond))
	assert.Equal(t, 3, s.Pending())

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"a"}, ran)

	clock.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Zero(t, s.Pending())
}

func TestInProcessCloseDropsPending(t *testing.T) {
	clock := schedulertest.NewManualClock()
	s := scheduler.NewInProcess(clock, testLogger())

	ran := 0
	s.Handle(func(context.Context, scheduler.Task) error {
		ran++
		return nil
	})
	require.NoError(t, s.Schedule(context.Background(), scheduler.Task{Kind: "x"}, time.Second))
	s.Close()

	clock.Advance(time.Minute)
	assert.Zero(t, ran)
	assert.ErrorIs(t, s.Schedule(context.Background(), scheduler.Task{Kind: "y"}, time.Second), scheduler.ErrClosed)
}

func TestInProcessWithRealClock(t *testing.T) {
	s := scheduler.NewInProcess(nil, testLogger())
	defer s.Close()

	done := make(chan scheduler.Task, 1)
	s.Handle(func(_ context.Context, task scheduler.Task) error {
		done <- task
		return nil
	})
	require.NoError(t, s.Schedule(context.Background(), scheduler.Task{Kind: "real", Payload: []byte("p")}, 10*time.Millisecond))

	select {
	case task := <-done:
		assert.Equal(t, "p", string(task.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}
