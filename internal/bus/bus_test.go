package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nadzzz/narrator/internal/config"
)

// TestPublishJSON round-trips a payload through an embedded server.
func TestPublishJSON(t *testing.T) {
	srv, err := StartEmbedded(-1)
	if err != nil {
		t.Fatalf("start embedded: %v", err)
	}
	defer srv.Shutdown()

	c, err := Connect(config.BusConfig{Servers: []string{srv.URL()}, ConnectTimeout: time.Second}, "bus-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if !c.Healthy() {
		t.Fatal("fresh connection not healthy")
	}

	sub, err := c.Conn().SubscribeSync("test.subject")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := c.PublishJSON(context.Background(), "test.subject", map[string]string{"jobId": "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["jobId"] != "a" {
		t.Fatalf("payload = %v", got)
	}
}

// TestCloseWaitsForDrain checks Close delivers messages already queued on
// a subscription before the connection goes away.
func TestCloseWaitsForDrain(t *testing.T) {
	srv, err := StartEmbedded(-1)
	if err != nil {
		t.Fatalf("start embedded: %v", err)
	}
	defer srv.Shutdown()

	cfg := config.BusConfig{Servers: []string{srv.URL()}, ConnectTimeout: time.Second}
	c, err := Connect(cfg, "bus-drain")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	pub, err := Connect(cfg, "bus-drain-pub")
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	defer pub.Close()

	started := make(chan struct{}, 3)
	var handled atomic.Int32
	sub, err := c.Conn().Subscribe("drain.subject", func(*nats.Msg) {
		started <- struct{}{}
		time.Sleep(100 * time.Millisecond)
		handled.Add(1)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := pub.PublishJSON(context.Background(), "drain.subject", map[string]int{"n": i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("message never delivered")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _, _ := sub.Pending(); n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("remaining messages never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Close()
	if !c.Conn().IsClosed() {
		t.Fatal("connection still open after Close")
	}
	if n := handled.Load(); n < 2 {
		t.Fatalf("handled = %d before close, want >= 2", n)
	}
}

// TestConnectRequiresServers checks an empty server list is rejected.
func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(config.BusConfig{}, "bus-test"); err == nil {
		t.Fatal("expected error for empty server list")
	}
}
