// Package tts defines the boundary between narrator and text-to-speech engines.
//
// The daemon never synthesizes audio itself. It hands jobs to a remote
// synthesis Service and later downloads the finished file. The worker, which
// implements that service, turns text into PCM through a Synthesizer.
package tts

import (
	"context"
	"errors"
	"io"

	"github.com/nadzzz/narrator/internal/message"
)

var (
	// ErrUnavailable means a request could not reach the synthesis service.
	ErrUnavailable = errors.New("tts: synthesis service unavailable")

	// ErrRejected means the service answered with a non-success status.
	ErrRejected = errors.New("tts: request rejected")

	// ErrRetrieval means a finished result could not be downloaded.
	ErrRetrieval = errors.New("tts: result retrieval failed")
)

// Service is the remote synthesis service as seen by the daemon.
type Service interface {
	// Dispatch hands a job to the service. A nil error means the service
	// accepted it and will report the outcome through a completion callback.
	Dispatch(ctx context.Context, job message.SynthesizeJob) error

	// Download opens the finished audio for jobID. The caller must close
	// the returned body. The string is the content type reported upstream.
	Download(ctx context.Context, jobID, locator string) (io.ReadCloser, string, error)
}

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Voice names the engine voice, e.g. "en_US-lessac-high".
	Voice string
}

// Synthesizer converts text to raw audio.
type Synthesizer interface {
	// Synthesize generates 16-bit little-endian PCM from the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of one synthesis call.
type SynthesizeResult struct {
	// PCM is interleaved signed 16-bit little-endian audio.
	PCM []byte

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}
