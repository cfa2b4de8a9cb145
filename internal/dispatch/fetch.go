package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nadzzz/narrator/internal/job"
)

// FetchState is what a poller learns about a job.
type FetchState int

const (
	// Pending means the job is still processing; poll again later.
	Pending FetchState = iota

	// Ready means the audio is available in Outcome.Body.
	Ready

	// Errored means synthesis failed; Outcome.Detail carries the reason.
	Errored
)

func (s FetchState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("FetchState(%d)", int(s))
}

// Outcome is the result of a Fetch.
type Outcome struct {
	State FetchState

	// Detail is the stored failure for Errored outcomes.
	Detail string

	// Body streams the finished audio for Ready outcomes. The caller must
	// close it, and must call Consume only after it was fully delivered.
	Body        io.ReadCloser
	ContentType string
}

// Fetch reports the state of job id. Reading a job never deletes it: a
// Ready outcome opens the finished audio, and the job stays stored until
// the caller has delivered it and calls Consume.
//
// A retrieval failure is returned as an error wrapping tts.ErrRetrieval and
// leaves the job in place so a later poll can retry.
func (d *Dispatcher) Fetch(ctx context.Context, id string) (*Outcome, error) {
	j, ok := d.store.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}

	switch st := j.State.(type) {
	case job.Failed:
		return &Outcome{State: Errored, Detail: st.Err}, nil

	case job.Done:
		ctx, span := d.tracer.Start(ctx, "dispatch.retrieve", trace.WithAttributes(attribute.String("job.id", id)))
		defer span.End()

		body, contentType, err := d.service.Download(ctx, id, st.Locator)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "retrieval failed")
			slog.Error("result retrieval failed", "job_id", id, "error", err)
			return nil, fmt.Errorf("retrieving job %s: %w", id, err)
		}
		return &Outcome{State: Ready, Body: body, ContentType: contentType}, nil

	default:
		return &Outcome{State: Pending}, nil
	}
}

// Consume deletes a delivered job. It reports whether this call removed it;
// for a given job at most one caller ever gets true.
func (d *Dispatcher) Consume(ctx context.Context, id string) bool {
	if !d.store.Consume(id) {
		return false
	}
	d.delivered.Add(ctx, 1)
	slog.Info("job consumed", "job_id", id)
	return true
}
