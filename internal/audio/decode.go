package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-audio/wav"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func init() {
	ffmpeg.LogCompiledCommand = false
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// Decode turns encoded audio into a Signal. WAV is decoded in process; any
// other container (typically MP3) is converted to 16-bit WAV by ffmpeg first.
func Decode(ctx context.Context, data []byte) (*Signal, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if IsWAV(data) {
		return DecodeWAV(data)
	}

	dir, err := os.MkdirTemp("", "narrator-decode-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	out := filepath.Join(dir, "decoded.wav")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing scratch input: %w", err)
	}

	if err := Transcode(ctx, in, out, ffmpeg.KwArgs{"acodec": "pcm_s16le", "f": "wav"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	wavData, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading decoded audio: %w", err)
	}
	return DecodeWAV(wavData)
}

// DecodeWAV decodes an uncompressed PCM WAV file.
func DecodeWAV(data []byte) (*Signal, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrMalformed)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrMalformed)
	}

	bitDepth := int(d.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrMalformed, bitDepth)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	sig := NewSignal(buf.Format.SampleRate, channels, frames)

	neg, pos := fullScale(bitDepth)
	for i := 0; i < frames*channels; i++ {
		v := buf.Data[i]
		if bitDepth == 8 {
			v -= 128 // unsigned
		}
		var f float32
		if v < 0 {
			f = float32(v) / neg
		} else {
			f = float32(v) / pos
		}
		sig.Channels[i%channels][i/channels] = Clamp(f)
	}

	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

// fullScale returns the magnitudes of the negative and positive integer bounds.
func fullScale(bitDepth int) (neg, pos float32) {
	n := float32(int64(1) << (bitDepth - 1))
	return n, n - 1
}

// Transcode runs ffmpeg from in to out with the given output arguments. The
// process is killed if ctx ends first.
func Transcode(ctx context.Context, in, out string, args ffmpeg.KwArgs) error {
	kw := ffmpeg.KwArgs{"loglevel": "error"}
	for k, v := range args {
		kw[k] = v
	}

	cmd := ffmpeg.Input(in).Output(out, kw).OverWriteOutput().Compile()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return runCmd(ctx, cmd, &stderr)
}

func runCmd(ctx context.Context, cmd *exec.Cmd, stderr *bytes.Buffer) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}
