package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

// TestReadiness covers the not-ready, ready and degraded states.
func TestReadiness(t *testing.T) {
	s := New(0, nil)
	h := s.Handler()

	if code, _ := get(t, h, "/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("before ready = %d, want 503", code)
	}

	s.SetReady(true)
	if code, _ := get(t, h, "/healthz"); code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", code)
	}

	var busDown bool
	s.AddCheck("bus", func(context.Context) error {
		if busDown {
			return errors.New("disconnected")
		}
		return nil
	})
	if code, _ := get(t, h, "/readyz"); code != http.StatusOK {
		t.Fatalf("readyz = %d, want 200", code)
	}

	busDown = true
	code, body := get(t, h, "/readyz")
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "disconnected") {
		t.Fatalf("degraded = %d %s", code, body)
	}
}

// TestMetricsMount checks /metrics is only served when a handler is given.
func TestMetricsMount(t *testing.T) {
	if code, _ := get(t, New(0, nil).Handler(), "/metrics"); code != http.StatusNotFound {
		t.Fatalf("without handler = %d, want 404", code)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("narrator_jobs_stored 0\n"))
	})
	code, body := get(t, New(0, metrics).Handler(), "/metrics")
	if code != http.StatusOK || !strings.Contains(body, "narrator_jobs_stored") {
		t.Fatalf("with handler = %d %q", code, body)
	}
}

// TestInfoDoesNotAffectReadiness checks info entries are reported while
// readiness stays ok.
func TestInfoDoesNotAffectReadiness(t *testing.T) {
	s := New(0, nil)
	s.SetReady(true)
	s.AddInfo("jobs", func() any {
		return map[string]int{"stored": 10, "max": 10}
	})

	code, body := get(t, s.Handler(), "/readyz")
	if code != http.StatusOK {
		t.Fatalf("readyz = %d, want 200", code)
	}
	if !strings.Contains(body, `"stored":10`) {
		t.Fatalf("body = %s, want jobs info", body)
	}
}
