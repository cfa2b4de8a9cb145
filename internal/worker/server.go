// Package worker is the reference synthesis service. It accepts jobs from
// the narrator daemon, synthesizes them on a bounded pool through a
// tts.Synthesizer, serves the finished files and reports each outcome back.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nadzzz/narrator/internal/message"
)

// Worker job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

const (
	maxBodyBytes = 1 << 20
	queueSize    = 1024
)

// Runner produces the audio file for a job.
type Runner interface {
	Run(ctx context.Context, job message.SynthesizeJob) (string, error)
}

type record struct {
	status string
	path   string
	err    string
}

// Server owns the worker's job table, queue and HTTP surface.
type Server struct {
	port        int
	concurrency int
	runner      Runner
	notifier    Notifier

	mu    sync.Mutex
	jobs  map[string]*record
	queue chan message.SynthesizeJob

	server *http.Server
}

// New creates a worker server. notifier may be nil.
func New(port, concurrency int, runner Runner, notifier Notifier) *Server {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Server{
		port:        port,
		concurrency: concurrency,
		runner:      runner,
		notifier:    notifier,
		jobs:        make(map[string]*record),
		queue:       make(chan message.SynthesizeJob, queueSize),
	}
}

// Routes builds the worker mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /synthesize", s.handleSynthesize)
	mux.HandleFunc("GET /download/{jobId}", s.handleDownload)
	mux.HandleFunc("GET /status/{jobId}", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run starts the pool and blocks until ctx is done and every in-flight job
// has finished.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx)
		}()
	}
	slog.Info("worker pool started", "concurrency", s.concurrency)
	wg.Wait()
}

// ListenAndServe serves the HTTP API until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("worker listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("worker listen: %w", err)
	}
	return nil
}

// Status returns the status of a job, or "" when it is unknown.
func (s *Server) Status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok {
		return rec.status
	}
	return ""
}

func (s *Server) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.process(ctx, job)
		}
	}
}

func (s *Server) process(ctx context.Context, job message.SynthesizeJob) {
	s.setStatus(job.JobID, &record{status: StatusProcessing})

	completion := message.Completion{JobID: job.JobID}
	path, err := s.runner.Run(ctx, job)
	if err != nil {
		slog.Error("job failed", "job_id", job.JobID, "error", err)
		s.setStatus(job.JobID, &record{status: StatusFailed, err: err.Error()})
		completion.Status = message.CompletionFailed
		completion.Error = err.Error()
	} else {
		s.setStatus(job.JobID, &record{status: StatusDone, path: path})
		completion.Status = message.CompletionDone
		completion.Path = path
	}

	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, completion); err != nil {
		slog.Warn("failed to notify daemon", "job_id", job.JobID, "error", err)
	}
}

func (s *Server) setStatus(id string, rec *record) {
	s.mu.Lock()
	s.jobs[id] = rec
	s.mu.Unlock()
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var job message.SynthesizeJob
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&job); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if job.JobID == "" {
		http.Error(w, "jobId is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, dup := s.jobs[job.JobID]; dup {
		s.mu.Unlock()
		http.Error(w, "Duplicate jobId", http.StatusBadRequest)
		return
	}
	select {
	case s.queue <- job:
		s.jobs[job.JobID] = &record{status: StatusQueued}
	default:
		s.mu.Unlock()
		http.Error(w, "queue full", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	slog.Debug("job queued", "job_id", job.JobID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(message.QueuedResponse{JobID: job.JobID, Status: StatusQueued})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("jobId")
	status := s.Status(id)
	if status == "" {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(message.QueuedResponse{JobID: id, Status: status})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("jobId")

	s.mu.Lock()
	rec, ok := s.jobs[id]
	var snapshot record
	if ok {
		snapshot = *rec
	}
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case snapshot.status == StatusQueued || snapshot.status == StatusProcessing:
		http.Error(w, snapshot.status, http.StatusAccepted)
		return
	case snapshot.status == StatusFailed:
		msg := snapshot.err
		if msg == "" {
			msg = "Job failed"
		}
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(snapshot.path)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	ext := filepath.Ext(snapshot.path)
	contentType := "audio/mpeg"
	if ext == ".wav" {
		contentType = "audio/wav"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, id, ext))
	http.ServeContent(w, r, "", info.ModTime(), f)
}
