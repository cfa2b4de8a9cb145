package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/message"
)

func newTestClient(url string, maxAttempts int) *Client {
	return New(config.ClientConfig{
		ServerURL:    url,
		PollInterval: time.Millisecond,
		MaxAttempts:  maxAttempts,
		Timeout:      2 * time.Second,
	}, WithMaxChars(5000))
}

// TestWaitRetriesUntilReady checks 202s are retried and 200 resolves.
func TestWaitRetriesUntilReady(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL, 0).Wait(context.Background(), "/api/download/a")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(data) != "audio" {
		t.Fatalf("data = %q", data)
	}
	if polls.Load() != 3 {
		t.Fatalf("polls = %d, want 3", polls.Load())
	}
}

// TestWaitTerminalErrors checks terminal statuses stop without retrying.
func TestWaitTerminalErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"failed", http.StatusInternalServerError, ErrJobFailed},
		{"teapot", http.StatusTeapot, ErrUnexpectedStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var polls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				polls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, 0).Wait(context.Background(), "/api/download/a")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if polls.Load() != 1 {
				t.Fatalf("polls = %d, want 1", polls.Load())
			}
		})
	}
}

// TestWaitPollLimit checks the optional attempt bound.
func TestWaitPollLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 4).Wait(context.Background(), "/api/download/a")
	if !errors.Is(err, ErrPollLimit) {
		t.Fatalf("err = %v, want ErrPollLimit", err)
	}
}

// TestWaitHonorsCancel checks an abandoned unbounded loop returns.
func TestWaitHonorsCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := newTestClient(srv.URL, 0).Wait(ctx, "/api/download/a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

// TestSubmit checks the request body and local validation.
func TestSubmit(t *testing.T) {
	var got message.SynthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(message.SubmitResponse{DownloadURL: "/api/download/j1"})
	}))
	defer srv.Close()
	c := newTestClient(srv.URL, 0)

	url, err := c.Submit(context.Background(), message.SynthesisRequest{Text: "hello", Voice: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if url != "/api/download/j1" || got.Text != "hello" || got.Voice != "x" {
		t.Fatalf("url = %q, request = %+v", url, got)
	}

	if _, err := c.Submit(context.Background(), message.SynthesisRequest{Text: "  "}); !errors.Is(err, ErrRejected) {
		t.Fatalf("blank text err = %v, want ErrRejected", err)
	}
	long := make([]rune, 5001)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := c.Submit(context.Background(), message.SynthesisRequest{Text: string(long)}); !errors.Is(err, ErrRejected) {
		t.Fatalf("long text err = %v, want ErrRejected", err)
	}
}

// TestVoices checks the catalog is fetched and parsed.
func TestVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"key":"en_US-lessac-high","name":"Lessac","family":"English","short-region":"US"}]`))
	}))
	defer srv.Close()

	cat, err := newTestClient(srv.URL, 0).Voices(context.Background())
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if !cat.Has("en_US-lessac-high") {
		t.Fatal("voice missing")
	}
}
