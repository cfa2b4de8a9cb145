// Package render is the offline transform engine used for export.
//
// Render resamples a signal for a new playback rate, runs it through the
// five peaking bands in increasing frequency order, applies gain, and clamps.
package render

import (
	"context"
	"fmt"
	"math"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/audio/fx"
	"github.com/nadzzz/narrator/internal/audio/wav"
)

// minSpeed guards the frame-count division.
const minSpeed = 0.01

// Render returns a new signal reflecting p. The input is never modified.
func Render(src *audio.Signal, p fx.Params) (*audio.Signal, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.IsIdentity() {
		return src.Clone(), nil
	}

	out := resample(src, p.Speed)

	for i, gainDB := range p.Bands {
		if math.Abs(gainDB) <= fx.Epsilon {
			continue
		}
		c := fx.Peaking(float64(out.SampleRate), fx.BandFrequencies[i], fx.BandQ, gainDB)
		for _, ch := range out.Channels {
			fx.NewBiquad(c).Process(ch)
		}
	}

	gain := float32(p.Gain)
	for _, ch := range out.Channels {
		for i, v := range ch {
			ch[i] = audio.Clamp(v * gain)
		}
	}
	return out, nil
}

// OutputFrames is the rendered length for frames played at speed.
func OutputFrames(frames int, speed float64) int {
	return int(math.Ceil(float64(frames) / math.Max(minSpeed, speed)))
}

// resample stretches src to OutputFrames at the original sample rate by
// linear interpolation. Speed 1 copies.
func resample(src *audio.Signal, speed float64) *audio.Signal {
	if math.Abs(speed-1) <= fx.Epsilon {
		return src.Clone()
	}

	inFrames := src.Frames()
	outFrames := OutputFrames(inFrames, speed)
	out := audio.NewSignal(src.SampleRate, src.NumChannels(), outFrames)
	if inFrames == 0 {
		return out
	}

	last := inFrames - 1
	for c, in := range src.Channels {
		dst := out.Channels[c]
		for i := range dst {
			pos := float64(i) * speed
			j := int(pos)
			if j >= last {
				dst[i] = in[last]
				continue
			}
			frac := float32(pos - float64(j))
			dst[i] = in[j] + (in[j+1]-in[j])*frac
		}
	}
	return out
}

// Export file names.
const (
	FastPathName  = "tts.mp3"
	FastPathOther = "tts.audio"
	EditedName    = "tts_edited.wav"
)

// Result is an export ready to be written to disk.
type Result struct {
	Name string
	Data []byte

	// Transformed is false when the original bytes were passed through.
	Transformed bool
}

// Export produces the downloadable file for the original encoded bytes. With
// identity parameters the bytes are returned untouched; otherwise they are
// decoded, rendered and encoded as WAV. No partial output is returned on
// error.
func Export(ctx context.Context, original []byte, p fx.Params) (*Result, error) {
	if len(original) == 0 {
		return nil, fmt.Errorf("%w: nothing to export", audio.ErrMalformed)
	}
	if p.IsIdentity() {
		name := FastPathOther
		if looksLikeMP3(original) {
			name = FastPathName
		}
		return &Result{Name: name, Data: original}, nil
	}

	sig, err := audio.Decode(ctx, original)
	if err != nil {
		return nil, fmt.Errorf("decoding audio: %w", err)
	}
	return ExportSignal(sig, p)
}

// ExportSignal renders an already decoded signal and encodes it as WAV.
func ExportSignal(sig *audio.Signal, p fx.Params) (*Result, error) {
	rendered, err := Render(sig, p)
	if err != nil {
		return nil, fmt.Errorf("rendering audio: %w", err)
	}
	data, err := wav.EncodeSignal(rendered)
	if err != nil {
		return nil, err
	}
	return &Result{Name: EditedName, Data: data, Transformed: true}, nil
}

// looksLikeMP3 checks for an ID3 tag or an MPEG frame sync.
func looksLikeMP3(b []byte) bool {
	if len(b) >= 3 && string(b[:3]) == "ID3" {
		return true
	}
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}
