package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const asynqQueue = "simulation"

// Asynq schedules tasks as delayed asynq tasks so they survive restarts and
// can be processed by any instance sharing the Redis.
type Asynq struct {
	client *asynq.Client
	redis  asynq.RedisClientOpt
	logger *slog.Logger
	prefix string
}

type AsynqConfig struct {
	Addr     string
	Password string
	DB       int
	// KindPrefix limits which task kinds the server routes to the handler.
	KindPrefix string
}

func NewAsynq(cfg AsynqConfig, logger *slog.Logger) *Asynq {
	if cfg.KindPrefix == "" {
		cfg.KindPrefix = "simulation:"
	}
	opt := asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	return &Asynq{
		client: asynq.NewClient(opt),
		redis:  opt,
		logger: logger,
		prefix: cfg.KindPrefix,
	}
}

func (s *Asynq) Schedule(ctx context.Context, t Task, delay time.Duration) error {
	task := asynq.NewTask(t.Kind, t.Payload)
	_, err := s.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.Queue(asynqQueue),
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Kind, err)
	}
	return nil
}

// Run processes due tasks with h until ctx is done.
func (s *Asynq) Run(ctx context.Context, h Handler) error {
	srv := asynq.NewServer(s.redis, asynq.Config{
		Concurrency:              10,
		Queues:                   map[string]int{asynqQueue: 1},
		DelayedTaskCheckInterval: 500 * time.Millisecond,
		Logger:                   slogAdapter{logger: s.logger},
	})
	if err := srv.Start(s.mux(h)); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

func (s *Asynq) mux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(s.prefix, func(ctx context.Context, task *asynq.Task) error {
		return h(ctx, Task{Kind: task.Type(), Payload: task.Payload()})
	})
	return mux
}

func (s *Asynq) Close() error {
	return s.client.Close()
}

// slogAdapter satisfies asynq.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(joinArgs(args)) }
func (a slogAdapter) Info(args ...any)  { a.logger.Info(joinArgs(args)) }
func (a slogAdapter) Warn(args ...any)  { a.logger.Warn(joinArgs(args)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(joinArgs(args)) }
func (a slogAdapter) Fatal(args ...any) { a.logger.Error(joinArgs(args), "fatal", true) }

func joinArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}
