// Package nats receives completion callbacks over a NATS subject.
//
// It is the bus-side twin of POST /api/notify-done: the worker may publish a
// message.Completion instead of calling back over HTTP. Requests that carry
// a reply subject get an Ack back.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/nadzzz/narrator/internal/message"
	"github.com/nadzzz/narrator/internal/transport"
)

// Ack answers a completion sent as a request.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Transport implements transport.Transport over NATS.
type Transport struct {
	conn    *nats.Conn
	subject string

	mu  sync.Mutex
	sub *nats.Subscription
}

// New creates a transport that listens for completions on subject.
func New(conn *nats.Conn, subject string) *Transport {
	return &Transport{conn: conn, subject: subject}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "nats" }

// Listen subscribes to the completion subject and blocks until ctx is done.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	sub, err := t.conn.Subscribe(t.subject, func(m *nats.Msg) {
		t.handle(ctx, m, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", t.subject, err)
	}
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()

	slog.Info("nats transport listening", "subject", t.subject)

	<-ctx.Done()
	return t.Close()
}

func (t *Transport) handle(ctx context.Context, m *nats.Msg, handler transport.Handler) {
	var c message.Completion
	err := json.Unmarshal(m.Data, &c)
	if err != nil {
		slog.Warn("dropping malformed completion", "subject", m.Subject, "error", err)
	} else if err = handler.Complete(ctx, &c); err != nil {
		slog.Warn("completion rejected", "job_id", c.JobID, "status", c.Status, "error", err)
	}

	if m.Reply == "" {
		return
	}
	ack := Ack{OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	data, _ := json.Marshal(ack)
	if rerr := m.Respond(data); rerr != nil {
		slog.Debug("completion ack failed", "error", rerr)
	}
}

// Close unsubscribes from the completion subject.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub == nil || !t.sub.IsValid() {
		return nil
	}
	return t.sub.Unsubscribe()
}
