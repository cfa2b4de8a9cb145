// Package audio holds the decoded signal shared by playback and export.
//
// A Signal is produced once from the bytes of a finished job and is never
// mutated afterwards; every transform derives a new one.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when audio cannot be decoded or is inconsistent.
var ErrMalformed = errors.New("audio: malformed")

// Signal is decoded PCM: one slice of normalized samples in [-1, 1] per
// channel, all of the same length.
type Signal struct {
	SampleRate int
	Channels   [][]float32
}

// NewSignal allocates a silent signal.
func NewSignal(sampleRate, channels, frames int) *Signal {
	s := &Signal{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range s.Channels {
		s.Channels[c] = make([]float32, frames)
	}
	return s
}

// NumChannels returns the channel count.
func (s *Signal) NumChannels() int { return len(s.Channels) }

// Frames returns the number of samples per channel.
func (s *Signal) Frames() int {
	if len(s.Channels) == 0 {
		return 0
	}
	return len(s.Channels[0])
}

// Duration is the playback length at the signal's own rate.
func (s *Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Frames()) / float64(s.SampleRate) * float64(time.Second))
}

// Validate checks the structural invariants.
func (s *Signal) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil signal", ErrMalformed)
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrMalformed, s.SampleRate)
	}
	if len(s.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrMalformed)
	}
	frames := len(s.Channels[0])
	for c, ch := range s.Channels {
		if len(ch) != frames {
			return fmt.Errorf("%w: channel %d has %d frames, want %d", ErrMalformed, c, len(ch), frames)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Signal) Clone() *Signal {
	out := &Signal{SampleRate: s.SampleRate, Channels: make([][]float32, len(s.Channels))}
	for c, ch := range s.Channels {
		out.Channels[c] = append([]float32(nil), ch...)
	}
	return out
}

// Clamp limits v to [-1, 1]. NaN becomes silence.
func Clamp(v float32) float32 {
	switch {
	case v != v:
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
