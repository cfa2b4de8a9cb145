// Package fx defines the transform parameters shared by offline export and
// live preview, and the peaking-filter math both of them use.
package fx

import (
	"errors"
	"fmt"
	"math"
)

// NumBands is the number of equalizer bands.
const NumBands = 5

// BandFrequencies are the band center frequencies in Hz, in cascade order.
var BandFrequencies = [NumBands]float64{60, 250, 1000, 4000, 10000}

// BandQ is the fixed bandwidth of every band.
const BandQ = 1.0

// Epsilon is the tolerance under which a parameter counts as identity.
const Epsilon = 1e-6

// Accepted parameter ranges.
const (
	MinSpeed  = 0.1
	MaxSpeed  = 10.0
	MinGain   = 0.0
	MaxGain   = 4.0
	MaxBandDB = 40.0
)

// ErrInvalidParams is returned by Validate.
var ErrInvalidParams = errors.New("fx: invalid parameters")

// Params are the user-controlled transform settings.
type Params struct {
	// Speed is the playback-rate multiplier; 2 halves the duration.
	Speed float64

	// Gain is a linear multiplier applied after the equalizer.
	Gain float64

	// Bands are the per-band gains in dB, ordered as BandFrequencies.
	Bands [NumBands]float64
}

// Identity returns parameters that leave audio unchanged.
func Identity() Params {
	return Params{Speed: 1, Gain: 1}
}

// IsIdentity reports whether every parameter is within Epsilon of identity.
func (p Params) IsIdentity() bool {
	if math.Abs(p.Speed-1) > Epsilon || math.Abs(p.Gain-1) > Epsilon {
		return false
	}
	for _, g := range p.Bands {
		if math.Abs(g) > Epsilon {
			return false
		}
	}
	return true
}

// Validate checks the parameters are finite and within range.
func (p Params) Validate() error {
	if !finite(p.Speed) || p.Speed < MinSpeed || p.Speed > MaxSpeed {
		return fmt.Errorf("%w: speed %v outside [%v, %v]", ErrInvalidParams, p.Speed, MinSpeed, MaxSpeed)
	}
	if !finite(p.Gain) || p.Gain < MinGain || p.Gain > MaxGain {
		return fmt.Errorf("%w: gain %v outside [%v, %v]", ErrInvalidParams, p.Gain, MinGain, MaxGain)
	}
	for i, g := range p.Bands {
		if !finite(g) || math.Abs(g) > MaxBandDB {
			return fmt.Errorf("%w: band %v Hz gain %v dB outside ±%v", ErrInvalidParams, BandFrequencies[i], g, MaxBandDB)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Coefficients are normalized biquad coefficients (a0 = 1).
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Passthrough leaves the signal unchanged.
var Passthrough = Coefficients{B0: 1}

// Peaking computes a peaking-EQ biquad centered on freq with quality q and
// gainDB boost or cut, for the given sample rate. Frequencies outside
// (0, Nyquist) yield Passthrough.
func Peaking(sampleRate, freq, q, gainDB float64) Coefficients {
	if sampleRate <= 0 || q <= 0 {
		return Passthrough
	}
	w0 := 2 * math.Pi * freq / sampleRate
	if w0 <= 0 || w0 >= math.Pi {
		return Passthrough
	}

	a := math.Pow(10, gainDB/40)
	alpha := math.Sin(w0) / (2 * q)
	cos := math.Cos(w0)

	a0 := 1 + alpha/a
	return Coefficients{
		B0: (1 + alpha*a) / a0,
		B1: (-2 * cos) / a0,
		B2: (1 - alpha*a) / a0,
		A1: (-2 * cos) / a0,
		A2: (1 - alpha/a) / a0,
	}
}

// Biquad is one second-order section in transposed direct form II.
type Biquad struct {
	c      Coefficients
	z1, z2 float64
}

// NewBiquad creates a filter with zeroed state.
func NewBiquad(c Coefficients) *Biquad {
	return &Biquad{c: c}
}

// SetCoefficients swaps coefficients and keeps the filter state.
func (f *Biquad) SetCoefficients(c Coefficients) {
	f.c = c
}

// Reset clears the filter state.
func (f *Biquad) Reset() {
	f.z1, f.z2 = 0, 0
}

// Tick filters one sample.
func (f *Biquad) Tick(x float64) float64 {
	y := f.c.B0*x + f.z1
	f.z1 = f.c.B1*x - f.c.A1*y + f.z2
	f.z2 = f.c.B2*x - f.c.A2*y
	return y
}

// Process filters buf in place.
func (f *Biquad) Process(buf []float32) {
	for i, x := range buf {
		buf[i] = float32(f.Tick(float64(x)))
	}
}
