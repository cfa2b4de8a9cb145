// Package transport defines the contract shared by narrator's inbound transports.
//
// Each transport (HTTP, gRPC, NATS) exposes part of the job lifecycle to the
// outside world. None of them hold job state; they translate their wire
// protocol into calls on a Handler, which the dispatcher implements.
package transport

import (
	"context"

	"github.com/nadzzz/narrator/internal/dispatch"
	"github.com/nadzzz/narrator/internal/message"
)

// Handler is the job lifecycle as seen by transports.
type Handler interface {
	Submit(ctx context.Context, req *message.SynthesisRequest) (string, error)
	Complete(ctx context.Context, c *message.Completion) error
	Fetch(ctx context.Context, id string) (*dispatch.Outcome, error)
	Consume(ctx context.Context, id string) bool
}

var _ Handler = (*dispatch.Dispatcher)(nil)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http", "grpc", "nats").
	Name() string

	// Listen starts accepting requests and hands them to handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
