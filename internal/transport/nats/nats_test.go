package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/nadzzz/narrator/internal/dispatch"
	"github.com/nadzzz/narrator/internal/message"
)

type recordingHandler struct {
	got chan message.Completion
}

func (h *recordingHandler) Submit(context.Context, *message.SynthesisRequest) (string, error) {
	return "", errors.New("not used")
}

func (h *recordingHandler) Complete(_ context.Context, c *message.Completion) error {
	h.got <- *c
	if c.JobID == "unknown" {
		return dispatch.ErrJobNotFound
	}
	return nil
}

func (h *recordingHandler) Fetch(context.Context, string) (*dispatch.Outcome, error) {
	return nil, dispatch.ErrJobNotFound
}

func (h *recordingHandler) Consume(context.Context, string) bool { return false }

func startServer(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// TestCompletionRequest checks completions reach the handler and are acked.
func TestCompletionRequest(t *testing.T) {
	nc := startServer(t)
	h := &recordingHandler{got: make(chan message.Completion, 4)}
	tr := New(nc, "narrator.jobs.done")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Listen(ctx, h) }()
	defer func() {
		cancel()
		<-done
	}()

	request := func(c message.Completion) Ack {
		t.Helper()
		data, _ := json.Marshal(c)
		var msg *nats.Msg
		var err error
		// the subscription is installed asynchronously
		for i := 0; i < 50; i++ {
			msg, err = nc.Request("narrator.jobs.done", data, 200*time.Millisecond)
			if err == nil {
				break
			}
		}
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		var ack Ack
		if err := json.Unmarshal(msg.Data, &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		return ack
	}

	ack := request(message.Completion{JobID: "a", Status: "done", Path: "/r/a"})
	if !ack.OK {
		t.Fatalf("ack = %+v, want ok", ack)
	}
	got := <-h.got
	if got.JobID != "a" || got.Path != "/r/a" {
		t.Fatalf("completion = %+v", got)
	}

	ack = request(message.Completion{JobID: "unknown", Status: "done", Path: "/r"})
	if ack.OK || ack.Error == "" {
		t.Fatalf("ack = %+v, want rejection", ack)
	}
}
