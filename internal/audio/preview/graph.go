// Package preview is the live playback path.
//
// A Graph mirrors the export engine's five peaking bands and master gain but
// runs block by block. Parameter changes are picked up at the start of the
// next block without rebuilding the graph or dropping filter state. Speed is
// not part of the graph: the Player changes its playback rate instead.
package preview

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/audio/fx"
)

type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Graph is an incrementally mutable EQ and gain chain.
//
// Setters are safe to call from any goroutine. Process must only be called
// from the goroutine that renders audio.
type Graph struct {
	sampleRate float64
	channels   int

	gain    atomicFloat
	bands   [fx.NumBands]atomicFloat
	version atomic.Uint64

	buildOnce sync.Once
	built     atomic.Bool

	// owned by the rendering goroutine
	filters     [fx.NumBands][]*fx.Biquad
	applied     uint64
	appliedGain float32
}

// NewGraph creates an inactive graph. Nothing is allocated until the first
// block is processed or Activate is called.
func NewGraph(sampleRate, channels int) *Graph {
	g := &Graph{sampleRate: float64(sampleRate), channels: channels}
	g.gain.Store(1)
	g.version.Store(1)
	return g
}

// Activate builds the filter chain.
func (g *Graph) Activate() {
	g.buildOnce.Do(func() {
		for b := range g.filters {
			g.filters[b] = make([]*fx.Biquad, g.channels)
			for c := range g.filters[b] {
				g.filters[b][c] = fx.NewBiquad(fx.Passthrough)
			}
		}
		g.built.Store(true)
	})
}

// Active reports whether the chain has been built.
func (g *Graph) Active() bool { return g.built.Load() }

// SetGain changes the master gain.
func (g *Graph) SetGain(v float64) {
	g.gain.Store(v)
	g.version.Add(1)
}

// SetBand changes the gain in dB of band i.
func (g *Graph) SetBand(i int, db float64) {
	if i < 0 || i >= fx.NumBands {
		return
	}
	g.bands[i].Store(db)
	g.version.Add(1)
}

// SetParams applies the gain and band settings of p. Speed is ignored.
func (g *Graph) SetParams(p fx.Params) {
	g.gain.Store(p.Gain)
	for i, db := range p.Bands {
		g.bands[i].Store(db)
	}
	g.version.Add(1)
}

// Params returns the current settings with speed left at 1.
func (g *Graph) Params() fx.Params {
	p := fx.Params{Speed: 1, Gain: g.gain.Load()}
	for i := range p.Bands {
		p.Bands[i] = g.bands[i].Load()
	}
	return p
}

// Reset clears filter state, e.g. when new audio is loaded. It must be called
// from the rendering goroutine or while playback is stopped.
func (g *Graph) Reset() {
	for b := range g.filters {
		for _, f := range g.filters[b] {
			f.Reset()
		}
	}
}

// Process filters one block in place. block holds one slice per channel.
func (g *Graph) Process(block [][]float32) {
	g.Activate()

	if v := g.version.Load(); v != g.applied {
		for b := range g.filters {
			c := fx.Peaking(g.sampleRate, fx.BandFrequencies[b], fx.BandQ, g.bands[b].Load())
			for _, f := range g.filters[b] {
				f.SetCoefficients(c)
			}
		}
		g.appliedGain = float32(g.gain.Load())
		g.applied = v
	}

	for c, ch := range block {
		if c >= g.channels {
			break
		}
		for b := range g.filters {
			g.filters[b][c].Process(ch)
		}
		for i, v := range ch {
			ch[i] = audio.Clamp(v * g.appliedGain)
		}
	}
}
