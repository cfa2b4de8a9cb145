// Package dispatch implements the job orchestrator.
//
// The dispatcher accepts synthesis requests from transports, creates a job
// in the store and hands it to the synthesis service in the background. The
// service reports back through Complete; clients observe the job through
// Fetch until its audio has been delivered once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nadzzz/narrator/internal/job"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/tts"
)

const instrumentation = "github.com/nadzzz/narrator/internal/dispatch"

// defaultFailure is stored when the service reports a failure without detail.
const defaultFailure = "synthesis failed"

var (
	ErrTextRequired   = errors.New("text is required")
	ErrTextTooLong    = errors.New("text exceeds maximum length")
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidStatus  = errors.New("invalid completion status")
	ErrMissingLocator = errors.New("completion is missing the result path")
)

// Options configures a Dispatcher.
type Options struct {
	// MaxChars bounds the request text, counted in characters.
	MaxChars int

	// DispatchTimeout bounds the background call to the synthesis service.
	DispatchTimeout time.Duration
}

// Dispatcher is the job orchestrator. It owns no job state of its own;
// everything lives in the injected store.
type Dispatcher struct {
	store   *job.Store
	service tts.Service
	opts    Options

	wg sync.WaitGroup

	tracer    trace.Tracer
	submitted metric.Int64Counter
	completed metric.Int64Counter
	delivered metric.Int64Counter
}

// New creates a dispatcher over store that hands jobs to service.
func New(store *job.Store, service tts.Service, opts Options) *Dispatcher {
	meter := otel.Meter(instrumentation)
	d := &Dispatcher{
		store:   store,
		service: service,
		opts:    opts,
		tracer:  otel.Tracer(instrumentation),
	}
	d.submitted, _ = meter.Int64Counter("narrator.jobs.submitted",
		metric.WithDescription("Synthesis jobs accepted"))
	d.completed, _ = meter.Int64Counter("narrator.jobs.completed",
		metric.WithDescription("Completion callbacks applied, by status"))
	d.delivered, _ = meter.Int64Counter("narrator.jobs.delivered",
		metric.WithDescription("Finished jobs whose audio was streamed and consumed"))
	return d
}

// Submit validates req, creates a job and returns its id. The job is handed
// to the synthesis service after Submit returns; if that hand-off fails the
// job is marked failed.
func (d *Dispatcher) Submit(ctx context.Context, req *message.SynthesisRequest) (string, error) {
	if req == nil || req.Text == "" {
		return "", ErrTextRequired
	}
	if n := utf8.RuneCountInString(req.Text); d.opts.MaxChars > 0 && n > d.opts.MaxChars {
		return "", fmt.Errorf("%w: %d characters, limit is %d", ErrTextTooLong, n, d.opts.MaxChars)
	}

	id := d.store.Create()
	d.submitted.Add(ctx, 1)
	slog.Info("job created", "job_id", id, "voice", req.Voice, "text_length", len(req.Text))

	synthJob := message.SynthesizeJob{
		JobID:   id,
		Text:    req.Text,
		Voice:   req.Voice,
		Options: req.Options,
	}

	// The request context ends with the HTTP response; the hand-off must not.
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handOff(bg, synthJob)
	}()

	return id, nil
}

func (d *Dispatcher) handOff(ctx context.Context, synthJob message.SynthesizeJob) {
	ctx, span := d.tracer.Start(ctx, "dispatch.handoff", trace.WithAttributes(attribute.String("job.id", synthJob.JobID)))
	defer span.End()

	if d.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.DispatchTimeout)
		defer cancel()
	}

	err := d.service.Dispatch(ctx, synthJob)
	if err == nil {
		slog.Debug("job handed to synthesis service", "job_id", synthJob.JobID)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "dispatch failed")
	slog.Error("dispatch failed", "job_id", synthJob.JobID, "error", err)

	if !d.store.Patch(synthJob.JobID, job.Failed{Err: err.Error()}) {
		slog.Warn("dispatch failure for vanished job", "job_id", synthJob.JobID)
	}
}

// Complete applies a completion callback from the synthesis service.
func (d *Dispatcher) Complete(ctx context.Context, c *message.Completion) error {
	var outcome job.Outcome
	switch c.Status {
	case message.CompletionDone:
		if c.Path == "" {
			return ErrMissingLocator
		}
		outcome = job.Done{Locator: c.Path}
	case message.CompletionFailed:
		detail := c.Error
		if detail == "" {
			detail = defaultFailure
		}
		outcome = job.Failed{Err: detail}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}

	if !d.store.Patch(c.JobID, outcome) {
		slog.Warn("completion for unknown job", "job_id", c.JobID, "status", c.Status)
		return ErrJobNotFound
	}

	d.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", c.Status)))
	slog.Info("job completed", "job_id", c.JobID, "status", c.Status)
	return nil
}

// Close waits for in-flight hand-offs to finish.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return nil
}
