package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/allowork/allowork/libs/config"
	"github.com/allowork/allowork/libs/db"
	"github.com/allowork/allowork/libs/httpx"
	"github.com/allowork/allowork/libs/kafkax"
	otelx "github.com/allowork/allowork/libs/otel"
	"github.com/allowork/allowork/libs/runtime"
	"github.com/allowork/allowork/services/notification-service/internal/consumer"
	"github.com/allowork/allowork/services/notification-service/internal/delivery"
	"github.com/allowork/allowork/services/notification-service/internal/email"
	"github.com/allowork/allowork/services/notification-service/internal/inbox"
	"github.com/allowork/allowork/services/notification-service/internal/sms"
	"github.com/allowork/allowork/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("load .env failed", "err", err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	var (
		inboxRepo   inbox.Inbox
		recorder    storage.Recorder
		readyChecks []runtime.ReadyCheck
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{
			ConnectRetry: config.Duration("DB_CONNECT_RETRY", 30*time.Second),
			Logger:       logger,
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgInbox := inbox.NewRepository(pool)
		deliveries := storage.NewRepository(pool)
		for _, ensure := range []func(context.Context) error{pgInbox.EnsureSchema, deliveries.EnsureSchema} {
			if err := ensure(ctx); err != nil {
				logger.Error("ensure schema failed", "err", err)
				os.Exit(1)
			}
		}
		inboxRepo, recorder = pgInbox, deliveries
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Info("DATABASE_URL not set; inbox and deliveries kept in memory")
		inboxRepo = inbox.NewMemory(config.Int("INBOX_MEMORY_MAX", 10000))
		recorder = storage.NewMemory()
	}

	var emailSender email.Sender
	if host := config.String("SMTP_HOST", ""); host != "" {
		emailSender = email.NewSMTPSender(email.SMTPConfig{
			Host:     host,
			Port:     config.String("SMTP_PORT", "1025"),
			From:     config.String("SMTP_FROM", email.DefaultFrom),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
		})
	} else {
		emailSender = email.NewNoopSender()
	}

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	deliverer := delivery.NewService(emailSender, smsSender, recorder, logger, delivery.Config{
		BaseURL:    config.String("APP_BASE_URL", ""),
		FailSuffix: config.String("NOTIFICATION_FAIL_SUFFIX", ""),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	if len(kafkax.SplitBrokers(brokers)) > 0 {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", "marketplace.notification.created.v1"),
		}, deliverer.Handle)
		go eventConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; no events will be consumed")
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "sms_provider", smsSender.ProviderID(), "email_provider", emailSender.ProviderID())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
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
