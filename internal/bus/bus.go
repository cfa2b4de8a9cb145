// Package bus wraps the NATS connection used for completion callbacks.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/nadzzz/narrator/internal/config"
)

// Client wraps a NATS connection with the few helpers narrator needs.
type Client struct {
	conn   *nats.Conn
	log    *slog.Logger
	closed chan struct{}
}

// drainTimeout bounds how long Close waits for in-flight messages.
const drainTimeout = 5 * time.Second

// Connect dials the configured NATS servers.
func Connect(cfg config.BusConfig, name string) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	closed := make(chan struct{})
	options := []nats.Option{
		nats.Name(name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.DrainTimeout(drainTimeout),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log := slog.With("component", "bus")
	log.Info("connected to nats", "servers", url)
	return &Client{conn: conn, log: log, closed: closed}, nil
}

// PublishJSON encodes v and publishes it on subject, then flushes so the
// message has left the process when PublishJSON returns.
func (c *Client) PublishJSON(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return c.conn.FlushWithContext(ctx)
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Healthy reports whether the connection is up.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Close drains pending messages and blocks until the connection is closed.
// Drain runs in the background, so Close waits for the closed callback.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing nats connection")
	if err := c.conn.Drain(); err != nil {
		c.log.Warn("nats drain failed, closing", "error", err)
		c.conn.Close()
		return
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.log.Warn("nats drain did not finish, closing")
		c.conn.Close()
	}
}

// EmbeddedServer is an in-process NATS server for single-host deployments.
type EmbeddedServer struct {
	ns *server.Server
}

// StartEmbedded starts a NATS server on port. A port of -1 picks a random one.
func StartEmbedded(port int) (*EmbeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded nats server failed to start within 5 seconds")
	}

	slog.Info("embedded nats server started", "url", ns.ClientURL())
	return &EmbeddedServer{ns: ns}, nil
}

// URL is the client URL of the embedded server.
func (e *EmbeddedServer) URL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	slog.Info("shutting down embedded nats server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
