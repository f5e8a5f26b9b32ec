package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/allowork/allowork/libs/config"
	"github.com/allowork/allowork/libs/db"
	"github.com/allowork/allowork/libs/httpx"
	"github.com/allowork/allowork/libs/redisx"
	"github.com/allowork/allowork/services/marketplace-service/internal/accounts"
	"github.com/allowork/allowork/services/marketplace-service/internal/assistant"
	"github.com/allowork/allowork/services/marketplace-service/internal/messaging"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/scheduler"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

type storageBackend struct {
	kind   string
	store  storage.Store
	outbox outbox.Repository
	ready  func(context.Context) error
	close  func()
}

func (b storageBackend) Close() {
	if b.close != nil {
		b.close()
	}
}

// openStorage picks Postgres when DATABASE_URL is set and the seeded memory
// store otherwise.
func openStorage(ctx context.Context, logger *slog.Logger) (storageBackend, error) {
	dbURL := config.String("DATABASE_URL", "")
	if dbURL == "" {
		store := storage.NewMemory()
		if err := seed(ctx, store, true); err != nil {
			return storageBackend{}, err
		}
		return storageBackend{
			kind:   "memory",
			store:  store,
			outbox: outbox.NewMemoryRepository(config.Int("OUTBOX_MEMORY_MAX", 10000)),
		}, nil
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns:     int32(config.Int("DB_MAX_CONNS", 10)),
		ConnectRetry: config.Duration("DB_CONNECT_RETRY", 30*time.Second),
		Logger:       logger,
	})
	if err != nil {
		return storageBackend{}, err
	}
	store := storage.NewPostgres(pool)
	outboxRepo := outbox.NewPostgresRepository(pool)
	for _, ensure := range []func(context.Context) error{store.EnsureSchema, outboxRepo.EnsureSchema} {
		if err := ensure(ctx); err != nil {
			pool.Close()
			return storageBackend{}, fmt.Errorf("ensure schema: %w", err)
		}
	}
	if err := seed(ctx, store, config.Bool("SEED_DEMO_DATA", false)); err != nil {
		pool.Close()
		return storageBackend{}, err
	}
	return storageBackend{
		kind:   "postgres",
		store:  store,
		outbox: outboxRepo,
		ready:  db.ReadyCheck(pool),
		close:  pool.Close,
	}, nil
}

func seed(ctx context.Context, store storage.Store, enabled bool) error {
	if !enabled {
		return nil
	}
	hash, err := accounts.HashPassword(config.String("SEED_PASSWORD", "allowork"))
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	if err := storage.SeedDemo(ctx, store, hash, time.Now()); err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	return nil
}

// openRedis returns nil without error when REDIS_ADDR is unset.
func openRedis(ctx context.Context) (*redis.Client, error) {
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	opts, err := redisx.ParseOptions(addr)
	if err != nil {
		return nil, err
	}
	if pw := config.String("REDIS_PASSWORD", ""); pw != "" {
		opts.Password = pw
	}
	if n := config.Int("REDIS_DB", -1); n >= 0 {
		opts.DB = n
	}
	return redisx.OpenOptions(ctx, opts)
}

func rateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "ratelimit:marketplace").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

// newScheduler returns the scheduler for the messaging simulation and the
// loop that runs its handler. asynq is used when Redis is available.
func newScheduler(rdb *redis.Client, logger *slog.Logger) (scheduler.Scheduler, func(context.Context, scheduler.Handler)) {
	if rdb != nil && config.Bool("SIMULATION_USE_ASYNQ", true) {
		opts := rdb.Options()
		s := scheduler.NewAsynq(scheduler.AsynqConfig{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}, logger)
		return s, func(ctx context.Context, h scheduler.Handler) {
			defer s.Close()
			if err := s.Run(ctx, h); err != nil {
				logger.Error("asynq server stopped", "err", err)
			}
		}
	}
	s := scheduler.NewInProcess(scheduler.RealClock, logger)
	return s, func(ctx context.Context, h scheduler.Handler) {
		s.Handle(h)
		<-ctx.Done()
		s.Close()
	}
}

func newTypingTracker(rdb *redis.Client) messaging.TypingTracker {
	if rdb != nil {
		return messaging.NewRedisTyping(rdb)
	}
	return messaging.NewMemoryTyping()
}

func newAnalysisCache(rdb *redis.Client, logger *slog.Logger) assistant.AnalysisCache {
	if rdb == nil {
		return nil
	}
	return assistant.NewRedisCache(rdb, config.Duration("AI_CACHE_TTL", time.Hour), logger)
}

// newModel returns Gemini when an API key is configured and the disabled
// model otherwise.
func newModel(ctx context.Context, logger *slog.Logger) assistant.Model {
	key := config.String("GEMINI_API_KEY", config.String("API_KEY", ""))
	if key == "" {
		logger.Info("no Gemini API key; assistant replies with defaults")
		return assistant.Disabled{}
	}
	m, err := assistant.NewGemini(ctx, key, config.String("GEMINI_MODEL", assistant.DefaultModel))
	if err != nil {
		logger.Error("gemini client init failed; assistant disabled", "err", err)
		return assistant.Disabled{}
	}
	return m
}

// originChecker allows WebSocket handshakes from the CORS origins. No
// configured origins, or "*", accepts any origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
