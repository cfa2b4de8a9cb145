package wav

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/nadzzz/narrator/internal/audio"
)

// TestEncodeSilence checks the 1 s, 8000 Hz, mono silence layout.
func TestEncodeSilence(t *testing.T) {
	out, err := Encode([][]float32{make([]float32, 8000)}, 8000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(out) != 44+16000 {
		t.Fatalf("len = %d, want %d", len(out), 44+16000)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"riff size", le.Uint32(out[4:]), 36 + 16000},
		{"fmt size", le.Uint32(out[16:]), 16},
		{"format", uint32(le.Uint16(out[20:])), 1},
		{"channels", uint32(le.Uint16(out[22:])), 1},
		{"sample rate", le.Uint32(out[24:]), 8000},
		{"byte rate", le.Uint32(out[28:]), 16000},
		{"block align", uint32(le.Uint16(out[32:])), 2},
		{"bits", uint32(le.Uint16(out[34:])), 16},
		{"data size", le.Uint32(out[40:]), 16000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	for _, tag := range []struct {
		off int
		s   string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if got := string(out[tag.off : tag.off+4]); got != tag.s {
			t.Errorf("tag at %d = %q, want %q", tag.off, got, tag.s)
		}
	}

	for i, b := range out[44:] {
		if b != 0 {
			t.Fatalf("sample byte %d = %d, want 0", i, b)
		}
	}
}

// TestEncodeInterleavesStereo checks frame-major channel interleaving.
func TestEncodeInterleavesStereo(t *testing.T) {
	left := []float32{1, -1}
	right := []float32{0.5, 0}
	out, err := Encode([][]float32{left, right}, 44100)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	le := binary.LittleEndian
	if got := le.Uint16(out[22:]); got != 2 {
		t.Fatalf("channels = %d, want 2", got)
	}
	if got := le.Uint16(out[32:]); got != 4 {
		t.Fatalf("block align = %d, want 4", got)
	}

	want := []int16{32767, 16383, -32768, 0}
	for i, w := range want {
		if got := int16(le.Uint16(out[44+2*i:])); got != w {
			t.Fatalf("sample %d = %d, want %d", i, got, w)
		}
	}
}

// TestQuantize covers clamping and the asymmetric scale.
func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{-0.5, -16384},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestEncodeRejectsRaggedChannels checks mismatched channel lengths fail.
func TestEncodeRejectsRaggedChannels(t *testing.T) {
	if _, err := Encode([][]float32{{0, 0}, {0}}, 8000); err == nil {
		t.Fatal("expected error")
	}
	if _, err := EncodeSignal(&audio.Signal{SampleRate: 0, Channels: [][]float32{{0}}}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

// TestRoundTripThroughDecoder checks encoded output decodes to the same signal.
func TestRoundTripThroughDecoder(t *testing.T) {
	src := audio.NewSignal(16000, 2, 160)
	for i := 0; i < 160; i++ {
		src.Channels[0][i] = float32(math.Sin(float64(i) / 10))
		src.Channels[1][i] = -src.Channels[0][i] / 2
	}

	data, err := EncodeSignal(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != 16000 || got.NumChannels() != 2 || got.Frames() != 160 {
		t.Fatalf("decoded %d Hz, %d ch, %d frames", got.SampleRate, got.NumChannels(), got.Frames())
	}
	for c := range src.Channels {
		for i := range src.Channels[c] {
			if d := math.Abs(float64(got.Channels[c][i] - src.Channels[c][i])); d > 1.0/16384 {
				t.Fatalf("ch %d frame %d differs by %g", c, i, d)
			}
		}
	}
}
