// Package http implements the REST API of the narrator daemon.
//
// Clients submit text on POST /api and poll GET /api/download/{jobId} until
// the audio is ready. The synthesis service reports finished jobs on
// POST /api/notify-done.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/narrator/internal/dispatch"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/transport"
)

const (
	maxBodyBytes     = 1 << 20
	audioContentType = "audio/mpeg"
)

// Catalog serves the voice list verbatim.
type Catalog interface {
	Raw() []byte
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port    int
	voices  Catalog
	server  *http.Server
	started chan struct{}
}

// New creates a new HTTP transport on the given port. voices may be nil,
// in which case GET /api/voices answers 404.
func New(port int, voices Catalog) *Transport {
	return &Transport{port: port, voices: voices, started: make(chan struct{})}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Routes builds the API mux around handler.
func (t *Transport) Routes(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api", func(w http.ResponseWriter, r *http.Request) {
		t.handleSubmit(w, r, handler)
	})
	mux.HandleFunc("GET /api/download/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		t.handleDownload(w, r, handler)
	})
	mux.HandleFunc("POST /api/notify-done", func(w http.ResponseWriter, r *http.Request) {
		t.handleNotify(w, r, handler)
	})
	mux.HandleFunc("GET /api/voices", t.handleVoices)

	// Swagger UI over the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	close(t.started)

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleSubmit accepts a synthesis request.
//
// @Summary     Submit text for synthesis
// @Description Creates a job and hands it to the synthesis service. The job is polled on the returned downloadUrl.
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Param       request  body      message.SynthesisRequest  true  "Text, voice and synthesis options"
// @Success     201  {object}  message.SubmitResponse  "Job accepted"
// @Failure     400  {string}  string  "Text missing or too long"
// @Router      /api [post]
func (t *Transport) handleSubmit(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var req message.SynthesisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := handler.Submit(r.Context(), &req)
	switch {
	case errors.Is(err, dispatch.ErrTextRequired):
		http.Error(w, "Text is required", http.StatusBadRequest)
		return
	case errors.Is(err, dispatch.ErrTextTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("submit failed", "error", err)
		http.Error(w, "submit error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(message.SubmitResponse{DownloadURL: "/api/download/" + id})
}

// handleDownload reports a job's state and streams finished audio once.
//
// @Summary     Poll or download a job
// @Description 202 while the job is processing. 200 streams the audio and consumes the job.
// @Tags        jobs
// @Produce     audio/mpeg
// @Param       jobId  path  string  true  "Job id"
// @Success     200  {file}    binary  "Synthesized audio"
// @Success     202  {string}  string  "Still processing"
// @Failure     404  {string}  string  "Unknown, consumed or evicted job"
// @Failure     500  {string}  string  "Job failed or audio could not be retrieved"
// @Router      /api/download/{jobId} [get]
func (t *Transport) handleDownload(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	id := r.PathValue("jobId")
	log := slog.With("job_id", id)

	out, err := handler.Fetch(r.Context(), id)
	switch {
	case errors.Is(err, dispatch.ErrJobNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Failed to fetch audio", http.StatusInternalServerError)
		return
	}

	switch out.State {
	case dispatch.Pending:
		log.Debug("job still processing")
		http.Error(w, "Processing, try again later", http.StatusAccepted)
		return
	case dispatch.Errored:
		http.Error(w, "Job failed: "+out.Detail, http.StatusInternalServerError)
		return
	}

	defer out.Body.Close()

	contentType := audioContentType
	if strings.HasPrefix(out.ContentType, "audio/") {
		contentType = out.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, out.Body)
	if err == nil {
		err = http.NewResponseController(w).Flush()
	}
	if err != nil {
		log.Warn("audio delivery interrupted, keeping job", "bytes", n, "error", err)
		return
	}

	handler.Consume(r.Context(), id)
	log.Info("audio delivered", "bytes", n)
}

// handleNotify applies a completion callback from the synthesis service.
//
// @Summary     Report a finished job
// @Description Called by the synthesis service when a job is done or has failed.
// @Tags        callbacks
// @Accept      json
// @Param       completion  body  message.Completion  true  "Job outcome"
// @Success     200
// @Failure     400  {string}  string  "Unknown job or malformed outcome"
// @Router      /api/notify-done [post]
func (t *Transport) handleNotify(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var c message.Completion
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&c); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.Complete(r.Context(), &c); err != nil {
		if errors.Is(err, dispatch.ErrJobNotFound) {
			http.Error(w, "Invalid jobId", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleVoices serves the voice catalog unchanged.
//
// @Summary     List voices
// @Tags        voices
// @Produce     json
// @Success     200  {array}  voices.Voice
// @Router      /api/voices [get]
func (t *Transport) handleVoices(w http.ResponseWriter, _ *http.Request) {
	if t.voices == nil {
		http.Error(w, "voice catalog not configured", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(t.voices.Raw())
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	select {
	case <-t.started:
	default:
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}
