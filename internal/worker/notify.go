package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nadzzz/narrator/internal/message"
)

// Notifier reports a finished job to the daemon.
type Notifier interface {
	Notify(ctx context.Context, c message.Completion) error
}

// HTTPNotifier posts completions to the daemon's notify-done endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

// NewHTTPNotifier creates a notifier posting to url.
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify implements Notifier.
func (n *HTTPNotifier) Notify(ctx context.Context, c message.Completion) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding completion: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting completion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("daemon answered %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}

// Publisher publishes JSON messages. bus.Client satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, subject string, v any) error
}

// BusNotifier publishes completions on a NATS subject.
type BusNotifier struct {
	pub     Publisher
	subject string
}

// NewBusNotifier creates a notifier publishing on subject.
func NewBusNotifier(pub Publisher, subject string) *BusNotifier {
	return &BusNotifier{pub: pub, subject: subject}
}

// Notify implements Notifier.
func (n *BusNotifier) Notify(ctx context.Context, c message.Completion) error {
	return n.pub.PublishJSON(ctx, n.subject, c)
}
