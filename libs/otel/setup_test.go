package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg := ConfigFromEnv("marketplace-service")
	if !cfg.Enabled || cfg.OTLPEndpoint != "collector:4317" || cfg.SampleRatio != 0.25 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	if got := ConfigFromEnv("x").SampleRatio; got != 1 {
		t.Fatalf("expected out-of-range ratio to fall back to 1, got %v", got)
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if tc := CaptureTraceContext(context.Background()); !tc.Empty() {
		t.Fatalf("expected empty trace context without a span, got %+v", tc)
	}
	ctx := context.Background()
	if got := (TraceContext{}).Context(ctx); got != ctx {
		t.Fatalf("empty trace context must return the parent context")
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := ConfigFromEnv("notification-service")
	if cfg.Enabled {
		t.Fatal("tracing must be off by default")
	}
	if cfg.OTLPEndpoint != "localhost:4317" || !cfg.Insecure || cfg.Environment != "local" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
