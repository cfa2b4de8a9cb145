package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/tts"
)

func newClient(endpoint string) *Client {
	return New(config.SynthConfig{
		Endpoint:        endpoint,
		DispatchTimeout: 2 * time.Second,
		DownloadTimeout: 2 * time.Second,
	})
}

// TestDispatchPostsJob checks the job body reaches /synthesize.
func TestDispatchPostsJob(t *testing.T) {
	var got message.SynthesizeJob
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/synthesize" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(message.QueuedResponse{JobID: got.JobID, Status: "queued"})
	}))
	defer srv.Close()

	err := newClient(srv.URL+"/").Dispatch(context.Background(), message.SynthesizeJob{JobID: "a", Text: "hello", Voice: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.JobID != "a" || got.Text != "hello" || got.Voice != "x" {
		t.Fatalf("job = %+v", got)
	}
}

// TestDispatchErrors distinguishes unreachable services from rejections.
func TestDispatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate jobId", http.StatusBadRequest)
	}))
	err := newClient(srv.URL).Dispatch(context.Background(), message.SynthesizeJob{JobID: "a"})
	if !errors.Is(err, tts.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	srv.Close()

	err = newClient(srv.URL).Dispatch(context.Background(), message.SynthesizeJob{JobID: "a"})
	if !errors.Is(err, tts.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

// TestDownloadResolvesLocator checks relative locators go to /download/{id}.
func TestDownloadResolvesLocator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download/job-1", "/files/abs.mp3":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3" + r.URL.Path))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := newClient(srv.URL)

	tests := []struct {
		locator string
		want    string
	}{
		{"/tmp/job-1.mp3", "ID3/download/job-1"},
		{srv.URL + "/files/abs.mp3", "ID3/files/abs.mp3"},
	}
	for _, tt := range tests {
		body, ct, err := c.Download(context.Background(), "job-1", tt.locator)
		if err != nil {
			t.Fatalf("download %q: %v", tt.locator, err)
		}
		data, _ := io.ReadAll(body)
		body.Close()
		if string(data) != tt.want {
			t.Fatalf("body = %q, want %q", data, tt.want)
		}
		if ct != "audio/mpeg" {
			t.Fatalf("content type = %q", ct)
		}
	}
}

// TestDownloadNotReady maps non-200 answers to retrieval errors.
func TestDownloadNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	_, _, err := newClient(srv.URL).Download(context.Background(), "j", "")
	if !errors.Is(err, tts.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}
