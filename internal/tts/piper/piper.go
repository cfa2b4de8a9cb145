// Package piper synthesizes speech through a Piper server speaking the
// Wyoming protocol, which is how the worker turns text chunks into PCM.
//
// Wyoming protocol format (per event):
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts"
)

const (
	defaultRate   = 22050
	dialTimeout   = 10 * time.Second
	ioDeadline    = 30 * time.Second
	sampleWidth16 = 2
)

// Synthesizer implements tts.Synthesizer on top of one or more Wyoming servers.
type Synthesizer struct {
	endpoint  string            // default host:port
	endpoints map[string]string // language prefix of the voice key -> host:port
}

// New creates a Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[strings.ToLower(lang)] = cleanEndpoint(ep)
	}
	return &Synthesizer{
		endpoint:  cleanEndpoint(cfg.Endpoint),
		endpoints: endpoints,
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// endpointFor picks the server for a voice such as "de_DE-thorsten-medium",
// keyed by its language prefix ("de").
func (s *Synthesizer) endpointFor(voice string) string {
	lang, _, _ := strings.Cut(voice, "_")
	if ep := s.endpoints[strings.ToLower(lang)]; ep != "" {
		return ep
	}
	return s.endpoint
}

// Synthesize sends text to Piper and collects the returned PCM.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	if opts.Voice == "" {
		return nil, fmt.Errorf("no voice selected")
	}
	endpoint := s.endpointFor(opts.Voice)
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for voice %q", opts.Voice)
	}

	log := slog.With("voice", opts.Voice, "endpoint", endpoint)
	log.Debug("piper synthesize", "text_length", len(text))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(ioDeadline))
	}

	req := event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": opts.Voice},
		},
	}
	if err := writeEvent(conn, req, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	res := &tts.SynthesizeResult{SampleRate: defaultRate, Channels: 1}
	var pcm bytes.Buffer
	r := bufio.NewReader(conn)

	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				res.SampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				res.Channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok && int(w) != sampleWidth16 {
				return nil, fmt.Errorf("unsupported sample width %d", int(w))
			}

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			log.Debug("piper audio-stop", "pcm_bytes", pcm.Len(), "rate", res.SampleRate)
			res.PCM = pcm.Bytes()
			return res, nil

		case "error":
			msg := "unknown error"
			if t, ok := evt.Data["text"].(string); ok {
				msg = t
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			log.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// Close is a no-op; connections are per request.
func (s *Synthesizer) Close() error { return nil }

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt event, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", strings.TrimSpace(line))
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}

	body := make([]byte, jsonLen+1) // trailing newline
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}

	var evt event
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}
