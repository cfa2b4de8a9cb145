package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/nadzzz/narrator/internal/config"
)

// TestPrometheusExposesCounters checks instruments reach the scrape handler.
func TestPrometheusExposesCounters(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "narrator-test", Prometheus: true}, "test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.MetricsHandler == nil {
		t.Fatal("metrics handler is nil")
	}

	counter, err := otel.Meter("telemetry-test").Int64Counter("narrator.test.events")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.MetricsHandler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "narrator_test_events") {
		t.Fatalf("scrape output missing counter:\n%s", body)
	}
}

// TestPrometheusDisabled checks no handler is returned when turned off.
func TestPrometheusDisabled(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "narrator-test"}, "test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.MetricsHandler != nil {
		t.Fatal("expected nil metrics handler")
	}
}
