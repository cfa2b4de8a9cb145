// Package remote is the daemon's HTTP client for the synthesis service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/tts"
)

const errBodyLimit = 512

// Client implements tts.Service over HTTP.
type Client struct {
	endpoint string
	dispatch *http.Client
	download *http.Client
}

// New creates a client for the service at cfg.Endpoint.
//
// Dispatch requests are bounded as a whole by DispatchTimeout. Downloads only
// bound the wait for response headers so that large bodies may stream.
func New(cfg config.SynthConfig) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		ResponseHeaderTimeout: cfg.DownloadTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   8,
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		dispatch: &http.Client{Timeout: cfg.DispatchTimeout, Transport: transport},
		download: &http.Client{Transport: transport},
	}
}

// Dispatch posts the job to {endpoint}/synthesize.
func (c *Client) Dispatch(ctx context.Context, job message.SynthesizeJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.dispatch.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", tts.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: status %d: %s", tts.ErrRejected, resp.StatusCode, readSnippet(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Download fetches the finished audio. An absolute http(s) locator is used
// as-is; any other locator resolves to {endpoint}/download/{jobID}.
func (c *Client) Download(ctx context.Context, jobID, locator string) (io.ReadCloser, string, error) {
	target := c.resolve(jobID, locator)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", tts.ErrRetrieval, err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", tts.ErrRetrieval, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", fmt.Errorf("%w: status %d: %s", tts.ErrRetrieval, resp.StatusCode, readSnippet(resp.Body))
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) resolve(jobID, locator string) string {
	if u, err := url.Parse(locator); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return locator
	}
	return c.endpoint + "/download/" + url.PathEscape(jobID)
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errBodyLimit))
	return strings.TrimSpace(string(b))
}
