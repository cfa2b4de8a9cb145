// Package wav serializes float PCM into a canonical 16-bit RIFF/WAVE file.
//
// The output is byte-exact and deterministic: a 44-byte header followed by
// interleaved little-endian signed 16-bit samples.
package wav

import (
	"encoding/binary"
	"fmt"

	"github.com/nadzzz/narrator/internal/audio"
)

const (
	// HeaderSize is the length of the canonical header.
	HeaderSize = 44

	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	formatPCM      = 1
	fmtChunkSize   = 16
)

// Header holds the fields written into the canonical header.
type Header struct {
	Channels   int
	SampleRate int
	Frames     int
}

// DataSize is the byte length of the sample payload.
func (h Header) DataSize() int { return h.Frames * h.Channels * bytesPerSample }

// ByteRate is SampleRate * BlockAlign.
func (h Header) ByteRate() int { return h.SampleRate * h.BlockAlign() }

// BlockAlign is the size of one interleaved frame.
func (h Header) BlockAlign() int { return h.Channels * bytesPerSample }

// AppendTo appends the 44 header bytes to dst.
func (h Header) AppendTo(dst []byte) []byte {
	le := binary.LittleEndian
	dst = append(dst, "RIFF"...)
	dst = le.AppendUint32(dst, uint32(36+h.DataSize()))
	dst = append(dst, "WAVE"...)

	dst = append(dst, "fmt "...)
	dst = le.AppendUint32(dst, fmtChunkSize)
	dst = le.AppendUint16(dst, formatPCM)
	dst = le.AppendUint16(dst, uint16(h.Channels))
	dst = le.AppendUint32(dst, uint32(h.SampleRate))
	dst = le.AppendUint32(dst, uint32(h.ByteRate()))
	dst = le.AppendUint16(dst, uint16(h.BlockAlign()))
	dst = le.AppendUint16(dst, bitsPerSample)

	dst = append(dst, "data"...)
	dst = le.AppendUint32(dst, uint32(h.DataSize()))
	return dst
}

// Encode serializes channels (all of equal length) at sampleRate.
func Encode(channels [][]float32, sampleRate int) ([]byte, error) {
	return EncodeSignal(&audio.Signal{SampleRate: sampleRate, Channels: channels})
}

// EncodeSignal serializes s.
func EncodeSignal(s *audio.Signal) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("encoding wav: %w", err)
	}

	h := Header{Channels: s.NumChannels(), SampleRate: s.SampleRate, Frames: s.Frames()}
	out := make([]byte, 0, HeaderSize+h.DataSize())
	out = h.AppendTo(out)

	for i := 0; i < h.Frames; i++ {
		for _, ch := range s.Channels {
			out = binary.LittleEndian.AppendUint16(out, uint16(Quantize(ch[i])))
		}
	}
	return out, nil
}

// Quantize maps a float sample to int16, scaling negative values by 0x8000
// and non-negative values by 0x7fff after clamping.
func Quantize(v float32) int16 {
	v = audio.Clamp(v)
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7fff)
}
