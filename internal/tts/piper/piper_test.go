package piper

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts"
)

// fakePiper accepts one connection and answers a synthesize event with the
// given script of events.
func fakePiper(t *testing.T, script func(w net.Conn, req *event)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, _, err := readEvent(bufio.NewReader(conn))
		if err != nil {
			return
		}
		script(conn, req)
	}()
	return ln.Addr().String()
}

// TestSynthesizeCollectsChunks checks PCM chunks are concatenated in order.
func TestSynthesizeCollectsChunks(t *testing.T) {
	var gotVoice string
	addr := fakePiper(t, func(w net.Conn, req *event) {
		if v, ok := req.Data["voice"].(map[string]any); ok {
			gotVoice, _ = v["name"].(string)
		}
		_ = writeEvent(w, event{Type: "audio-start", Data: map[string]any{"rate": 16000, "width": 2, "channels": 1}}, nil)
		_ = writeEvent(w, event{Type: "audio-chunk"}, []byte{1, 2})
		_ = writeEvent(w, event{Type: "audio-chunk"}, []byte{3, 4})
		_ = writeEvent(w, event{Type: "audio-stop"}, nil)
	})

	s := New(config.PiperConfig{Endpoint: "tcp://" + addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.Synthesize(ctx, "hello", tts.SynthesizeOpts{Voice: "en_US-lessac-high"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(res.PCM, []byte{1, 2, 3, 4}) {
		t.Fatalf("pcm = %v, want [1 2 3 4]", res.PCM)
	}
	if res.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", res.SampleRate)
	}
	if gotVoice != "en_US-lessac-high" {
		t.Fatalf("voice = %q", gotVoice)
	}
}

// TestSynthesizeSurfacesServerError checks Wyoming error events become errors.
func TestSynthesizeSurfacesServerError(t *testing.T) {
	addr := fakePiper(t, func(w net.Conn, _ *event) {
		_ = writeEvent(w, event{Type: "error", Data: map[string]any{"text": "voice missing"}}, nil)
	})

	s := New(config.PiperConfig{Endpoint: addr})
	_, err := s.Synthesize(context.Background(), "hello", tts.SynthesizeOpts{Voice: "en_US-x"})
	if err == nil || !strings.Contains(err.Error(), "voice missing") {
		t.Fatalf("err = %v, want piper error", err)
	}
}

// TestEndpointForVoice checks per-language routing by voice key prefix.
func TestEndpointForVoice(t *testing.T) {
	s := New(config.PiperConfig{
		Endpoint:  "default:10200",
		Endpoints: map[string]string{"DE": "tcp://german:10200"},
	})

	if got := s.endpointFor("de_DE-thorsten-medium"); got != "german:10200" {
		t.Fatalf("endpoint = %q, want german:10200", got)
	}
	if got := s.endpointFor("en_US-lessac-high"); got != "default:10200" {
		t.Fatalf("endpoint = %q, want default:10200", got)
	}
}

// TestEventRoundTrip checks the header framing including payloads.
func TestEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeEvent(&buf, event{Type: "audio-chunk", Data: map[string]any{"rate": 1}}, []byte("pcm")); err != nil {
		t.Fatalf("write: %v", err)
	}
	evt, payload, err := readEvent(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != "audio-chunk" || string(payload) != "pcm" {
		t.Fatalf("got %q / %q", evt.Type, payload)
	}
}
