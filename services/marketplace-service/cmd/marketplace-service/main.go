package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/allowork/allowork/libs/auth"
	"github.com/allowork/allowork/libs/config"
	"github.com/allowork/allowork/libs/httpx"
	"github.com/allowork/allowork/libs/kafkax"
	otelx "github.com/allowork/allowork/libs/otel"
	"github.com/allowork/allowork/libs/redisx"
	"github.com/allowork/allowork/libs/runtime"
	"github.com/allowork/allowork/services/marketplace-service/internal/accounts"
	"github.com/allowork/allowork/services/marketplace-service/internal/assistant"
	"github.com/allowork/allowork/services/marketplace-service/internal/handlers"
	"github.com/allowork/allowork/services/marketplace-service/internal/marketplace"
	"github.com/allowork/allowork/services/marketplace-service/internal/messaging"
	"github.com/allowork/allowork/services/marketplace-service/internal/notify"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/realtime"
	"github.com/allowork/allowork/services/marketplace-service/internal/search"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("load .env failed", "err", err)
	}
	service := config.String("SERVICE_NAME", "marketplace-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		logger.Error("jwt config", "err", err)
		os.Exit(1)
	}
	signer, err := auth.NewSigner(jwtSecret, config.String("JWT_ISSUER", "allowork"), config.Duration("JWT_TTL", 24*time.Hour))
	if err != nil {
		logger.Error("jwt signer init failed", "err", err)
		os.Exit(1)
	}

	backend, err := openStorage(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	var readyChecks []runtime.ReadyCheck
	if backend.ready != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: backend.ready})
	}

	rdb, err := openRedis(ctx)
	if err != nil {
		logger.Error("redis unavailable; using in-process fallbacks", "err", err)
	}
	if rdb != nil {
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	brokers := config.String("KAFKA_BROKERS", "")
	if len(kafkax.SplitBrokers(brokers)) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer writer.Close()
		publisher := outbox.NewPublisher(backend.outbox, writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Info("KAFKA_BROKERS not set; domain events stay in the outbox")
	}
	emitter := outbox.NewEmitter(backend.outbox, logger)

	ai := assistant.New(newModel(ctx, logger), logger, assistant.Options{
		Timeout: config.Duration("AI_TIMEOUT", 15*time.Second),
		Cache:   newAnalysisCache(rdb, logger),
	})

	corsOrigins := config.List("CORS_ALLOWED_ORIGINS", "")
	hub := realtime.NewHub(logger, originChecker(corsOrigins))

	sched, runScheduler := newScheduler(rdb, logger)
	msgs := messaging.NewService(backend.store, sched, newTypingTracker(rdb), hub, emitter, logger, messaging.Options{
		Simulate: config.Bool("SIMULATE_REPLIES", true),
	})
	go runScheduler(ctx, msgs.HandleTask)

	notifier := notify.NewService(backend.store, emitter, logger)
	api := handlers.New(handlers.Deps{
		Accounts:    accounts.NewService(backend.store, signer, emitter, logger),
		Marketplace: marketplace.NewService(backend.store, notifier, emitter, logger),
		Search:      search.NewService(backend.store, ai),
		Messaging:   msgs,
		Notify:      notifier,
		Assistant:   ai,
		Hub:         hub,
		Verifier:    signer,
		Logger:      logger,
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	api.Routes(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit(rdb, logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "marketplace")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", backend.kind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
