// Package health provides the liveness, readiness and metrics endpoints.
//
// Docker and Kubernetes poll /healthz and /readyz. Readiness additionally
// runs the registered checks (bus connection) so a daemon that lost its
// dependencies stops receiving traffic. Info callbacks only annotate the
// readiness body and never fail it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Check reports an error when a dependency is unhealthy.
type Check func(ctx context.Context) error

// Info returns a value reported under its name in the /readyz body.
type Info func() any

// Server is a lightweight HTTP server that exposes /healthz, /readyz and,
// when a handler is mounted, /metrics.
type Server struct {
	port    int
	ready   atomic.Bool
	metrics http.Handler

	mu     sync.RWMutex
	checks map[string]Check
	info   map[string]Info

	server *http.Server
}

// New creates a new health check server. metrics may be nil.
func New(port int, metrics http.Handler) *Server {
	return &Server{
		port:    port,
		metrics: metrics,
		checks:  make(map[string]Check),
		info:    make(map[string]Info),
	}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// AddCheck registers a named readiness check.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// AddInfo registers a named value reported by /readyz. It does not affect
// readiness.
func (s *Server) AddInfo(name string, info Info) {
	s.mu.Lock()
	s.info[name] = info
	s.mu.Unlock()
}

// Handler returns the health mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		body := s.collectInfo()
		failed := s.runChecks(r.Context())
		if len(failed) > 0 {
			body["status"] = "degraded"
			body["checks"] = failed
			writeStatus(w, http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ok"
		writeStatus(w, http.StatusOK, body)
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *Server) runChecks(ctx context.Context) map[string]string {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

func (s *Server) collectInfo() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body := make(map[string]any, len(s.info)+2)
	if len(s.info) == 0 {
		return body
	}
	info := make(map[string]any, len(s.info))
	for name, fn := range s.info {
		info[name] = fn()
	}
	body["info"] = info
	return body
}

func writeStatus(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
