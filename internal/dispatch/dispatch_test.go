package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nadzzz/narrator/internal/job"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/tts"
)

// fakeService records dispatched jobs and serves downloads from memory.
type fakeService struct {
	mu          sync.Mutex
	jobs        []message.SynthesizeJob
	dispatchErr error
	files       map[string]string // job id -> body
	downloadErr error
	downloads   int
}

func (f *fakeService) Dispatch(_ context.Context, j message.SynthesizeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, j)
	return f.dispatchErr
}

func (f *fakeService) Download(_ context.Context, jobID, _ string) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	body, ok := f.files[jobID]
	if !ok {
		return nil, "", fmt.Errorf("%w: no file", tts.ErrRetrieval)
	}
	return io.NopCloser(strings.NewReader(body)), "audio/mpeg", nil
}

func newTestDispatcher(svc *fakeService) *Dispatcher {
	store := job.NewStore(time.Hour, 100)
	return New(store, svc, Options{MaxChars: 10, DispatchTimeout: time.Second})
}

func mustSubmit(t *testing.T, d *Dispatcher, text string) string {
	t.Helper()
	id, err := d.Submit(context.Background(), &message.SynthesisRequest{Text: text, Voice: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}

func mustFetch(t *testing.T, d *Dispatcher, id string) *Outcome {
	t.Helper()
	out, err := d.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	return out
}

// TestSubmitValidation checks empty and oversized text never create jobs.
func TestSubmitValidation(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	tests := []struct {
		name string
		req  *message.SynthesisRequest
		want error
	}{
		{"nil", nil, ErrTextRequired},
		{"empty", &message.SynthesisRequest{Voice: "x"}, ErrTextRequired},
		{"too long", &message.SynthesisRequest{Text: "eleven char"}, ErrTextTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Submit(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if d.store.Len() != 0 {
		t.Fatalf("store len = %d, want 0", d.store.Len())
	}
}

// TestSubmitCountsCharacters checks multibyte text is measured in characters.
func TestSubmitCountsCharacters(t *testing.T) {
	d := newTestDispatcher(&fakeService{})
	if _, err := d.Submit(context.Background(), &message.SynthesisRequest{Text: "ééééééééé"}); err != nil {
		t.Fatalf("nine characters rejected: %v", err)
	}
}

// TestSubmitIsPendingAndDispatched checks a fresh job polls as pending and
// reaches the synthesis service with its id.
func TestSubmitIsPendingAndDispatched(t *testing.T) {
	svc := &fakeService{}
	d := newTestDispatcher(svc)

	id := mustSubmit(t, d, "hello")
	if out := mustFetch(t, d, id); out.State != Pending {
		t.Fatalf("state = %v, want pending", out.State)
	}

	d.Close()
	if len(svc.jobs) != 1 || svc.jobs[0].JobID != id || svc.jobs[0].Text != "hello" {
		t.Fatalf("dispatched = %+v", svc.jobs)
	}
}

// TestDispatchFailureMarksFailed checks an unreachable service fails the job.
func TestDispatchFailureMarksFailed(t *testing.T) {
	svc := &fakeService{dispatchErr: fmt.Errorf("%w: connection refused", tts.ErrUnavailable)}
	d := newTestDispatcher(svc)

	id := mustSubmit(t, d, "hello")
	d.Close()

	out := mustFetch(t, d, id)
	if out.State != Errored {
		t.Fatalf("state = %v, want errored", out.State)
	}
	if !strings.Contains(out.Detail, "connection refused") {
		t.Fatalf("detail = %q", out.Detail)
	}
	// failed jobs are not consumed by reads
	if out := mustFetch(t, d, id); out.State != Errored {
		t.Fatalf("second read state = %v, want errored", out.State)
	}
}

// TestCompleteValidation covers unknown jobs and malformed callbacks.
func TestCompleteValidation(t *testing.T) {
	d := newTestDispatcher(&fakeService{})
	id := mustSubmit(t, d, "hello")
	d.Close()

	tests := []struct {
		name string
		c    message.Completion
		want error
	}{
		{"unknown job", message.Completion{JobID: "nope", Status: "done", Path: "/r"}, ErrJobNotFound},
		{"bad status", message.Completion{JobID: id, Status: "processing"}, ErrInvalidStatus},
		{"done without path", message.Completion{JobID: id, Status: "done"}, ErrMissingLocator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.Complete(context.Background(), &tt.c); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if out := mustFetch(t, d, id); out.State != Pending {
		t.Fatalf("rejected callbacks changed state to %v", out.State)
	}
}

// TestCompleteIdempotent checks duplicate callbacks keep the terminal state.
func TestCompleteIdempotent(t *testing.T) {
	d := newTestDispatcher(&fakeService{})
	id := mustSubmit(t, d, "hello")
	d.Close()

	for i := 0; i < 3; i++ {
		if err := d.Complete(context.Background(), &message.Completion{JobID: id, Status: "failed"}); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
	}
	out := mustFetch(t, d, id)
	if out.State != Errored || out.Detail != defaultFailure {
		t.Fatalf("outcome = %+v, want errored with default detail", out)
	}
}

// TestRetrievalFailureKeepsJob checks a failed download leaves the job done.
func TestRetrievalFailureKeepsJob(t *testing.T) {
	svc := &fakeService{downloadErr: fmt.Errorf("%w: timeout", tts.ErrRetrieval)}
	d := newTestDispatcher(svc)
	id := mustSubmit(t, d, "hello")
	d.Close()
	_ = d.Complete(context.Background(), &message.Completion{JobID: id, Status: "done", Path: "/r/" + id})

	if _, err := d.Fetch(context.Background(), id); !errors.Is(err, tts.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}

	svc.mu.Lock()
	svc.downloadErr = nil
	svc.files = map[string]string{id: "audio"}
	svc.mu.Unlock()

	if out := mustFetch(t, d, id); out.State != Ready {
		t.Fatalf("retry state = %v, want ready", out.State)
	}
}

// TestEndToEnd walks submit, callback, delivery and the not-found afterwards.
func TestEndToEnd(t *testing.T) {
	svc := &fakeService{files: map[string]string{}}
	d := newTestDispatcher(svc)

	a := mustSubmit(t, d, "hello")
	if out := mustFetch(t, d, a); out.State != Pending {
		t.Fatalf("state = %v, want pending", out.State)
	}
	d.Close()

	svc.mu.Lock()
	svc.files[a] = "ID3-bytes"
	svc.mu.Unlock()
	if err := d.Complete(context.Background(), &message.Completion{JobID: a, Status: "done", Path: "/r/" + a}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	out := mustFetch(t, d, a)
	if out.State != Ready {
		t.Fatalf("state = %v, want ready", out.State)
	}
	data, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil || string(data) != "ID3-bytes" {
		t.Fatalf("body = %q, err = %v", data, err)
	}
	if !d.Consume(context.Background(), a) {
		t.Fatal("consume after delivery failed")
	}

	if _, err := d.Fetch(context.Background(), a); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
	if err := d.Complete(context.Background(), &message.Completion{JobID: a, Status: "done", Path: "/r"}); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("late callback err = %v, want ErrJobNotFound", err)
	}
}

// TestConcurrentDelivery checks a done job is consumed at most once.
func TestConcurrentDelivery(t *testing.T) {
	svc := &fakeService{files: map[string]string{}}
	d := newTestDispatcher(svc)
	id := mustSubmit(t, d, "hello")
	d.Close()
	svc.files[id] = "audio"
	_ = d.Complete(context.Background(), &message.Completion{JobID: id, Status: "done", Path: "/r"})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		consumed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := d.Fetch(context.Background(), id)
			if err != nil {
				if !errors.Is(err, ErrJobNotFound) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			_, _ = io.Copy(io.Discard, out.Body)
			out.Body.Close()
			if d.Consume(context.Background(), id) {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
}
