// Package scheduler runs delayed tasks, either on in-process timers or as
// asynq tasks in Redis.
package scheduler

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("scheduler closed")

// Task is a unit of delayed work. Kind selects the handler branch and
// Payload is opaque to the scheduler.
type Task struct {
	Kind    string
	Payload []byte
}

type Handler func(ctx context.Context, t Task) error

type Scheduler interface {
	Schedule(ctx context.Context, t Task, delay time.Duration) error
}

// Clock abstracts timers so tests can fire them by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}
