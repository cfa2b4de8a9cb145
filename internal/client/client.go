// Package client talks to the narrator daemon: it submits text, polls the
// job until it resolves and downloads the audio.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/voices"
)

var (
	// ErrNotFound means the job is unknown, already consumed or evicted.
	ErrNotFound = errors.New("job not found")

	// ErrJobFailed means synthesis failed or the audio could not be fetched.
	ErrJobFailed = errors.New("job failed")

	// ErrUnexpectedStatus is returned for any other status code.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrPollLimit is returned when MaxAttempts polls saw no terminal answer.
	ErrPollLimit = errors.New("poll limit reached")

	// ErrRejected is returned when the daemon refuses a submission.
	ErrRejected = errors.New("request rejected")
)

const errBodyLimit = 4 << 10

// Client is a narrator API client.
type Client struct {
	base         string
	http         *http.Client
	pollInterval time.Duration
	maxAttempts  int
	maxChars     int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxChars lets Submit reject oversized text before calling the daemon.
func WithMaxChars(n int) Option {
	return func(c *Client) { c.maxChars = n }
}

// New creates a client from config.
func New(cfg config.ClientConfig, opts ...Option) *Client {
	c := &Client{
		base:         strings.TrimRight(cfg.ServerURL, "/"),
		http:         &http.Client{Timeout: cfg.Timeout},
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts a synthesis request and returns the job's download path.
func (c *Client) Submit(ctx context.Context, req message.SynthesisRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("%w: text is required", ErrRejected)
	}
	if c.maxChars > 0 && len([]rune(req.Text)) > c.maxChars {
		return "", fmt.Errorf("%w: text exceeds %d characters", ErrRejected, c.maxChars)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submitting: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", ErrRejected, snippet(resp.Body))
	default:
		return "", fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, snippet(resp.Body))
	}

	var sr message.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if sr.DownloadURL == "" {
		return "", fmt.Errorf("%w: response has no downloadUrl", ErrUnexpectedStatus)
	}
	return sr.DownloadURL, nil
}

// Wait polls downloadURL at a constant interval until the job resolves.
// A 202 schedules another poll; 200 yields the audio; 404, 500 and any other
// status end the loop with an error. With MaxAttempts of 0 the loop runs
// until a terminal answer or ctx is cancelled.
func (c *Client) Wait(ctx context.Context, downloadURL string) ([]byte, error) {
	target := c.resolve(downloadURL)

	for attempt := 1; ; attempt++ {
		data, pending, err := c.poll(ctx, target)
		if err != nil || !pending {
			return data, err
		}
		slog.Debug("job pending", "attempt", attempt)

		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			return nil, fmt.Errorf("%w after %d attempts", ErrPollLimit, attempt)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Synthesize submits req and waits for the audio.
func (c *Client) Synthesize(ctx context.Context, req message.SynthesisRequest) ([]byte, error) {
	url, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, url)
}

func (c *Client) poll(ctx context.Context, target string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("polling: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("reading audio: %w", err)
		}
		return data, false, nil
	case http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, snippet(resp.Body))
	case http.StatusInternalServerError:
		return nil, false, fmt.Errorf("%w: %s", ErrJobFailed, snippet(resp.Body))
	default:
		return nil, false, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, snippet(resp.Body))
	}
}

// Voices fetches the voice catalog.
func (c *Client) Voices(ctx context.Context) (*voices.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, snippet(resp.Body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading voices: %w", err)
	}
	return voices.Parse(data)
}

func (c *Client) resolve(downloadURL string) string {
	if strings.HasPrefix(downloadURL, "http://") || strings.HasPrefix(downloadURL, "https://") {
		return downloadURL
	}
	return c.base + "/" + strings.TrimLeft(downloadURL, "/")
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errBodyLimit))
	return strings.TrimSpace(string(b))
}
