package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InProcess runs tasks on timers inside this process. Pending tasks are
// dropped by Close. Each task gets its own timer, so tasks with different
// delays run independently.
type InProcess struct {
	clock   Clock
	logger  *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	handler Handler
	nextID  uint64
	pending map[uint64]Timer
	closed  bool
	running sync.WaitGroup
}

func NewInProcess(clock Clock, logger *slog.Logger) *InProcess {
	if clock == nil {
		clock = RealClock
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InProcess{
		clock:   clock,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
		pending: map[uint64]Timer{},
	}
}

// Handle sets the function that runs due tasks. It must be called before
// the first task fires.
func (s *InProcess) Handle(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *InProcess) Schedule(_ context.Context, t Task, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = s.clock.AfterFunc(delay, func() { s.fire(id, t) })
	return nil
}

func (s *InProcess) fire(id uint64, t Task) {
	s.mu.Lock()
	if _, ok := s.pending[id]; !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	h := s.handler
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	if h == nil {
		s.logger.Warn("scheduled task dropped, no handler", "kind", t.Kind)
		return
	}
	if err := h(s.baseCtx, t); err != nil {
		s.logger.Error("scheduled task failed", "kind", t.Kind, "err", err)
	}
}

// Pending reports how many tasks are waiting.
func (s *InProcess) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close drops pending tasks and waits for running ones.
func (s *InProcess) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.cancel()
	s.running.Wait()
}
