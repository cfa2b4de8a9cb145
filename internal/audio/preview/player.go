package preview

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/audio/fx"
)

// FillFunc writes frames of interleaved little-endian float32 samples to out.
type FillFunc func(out []byte, frames uint32)

// Device is an output device that pulls audio through a FillFunc.
type Device interface {
	Start() error
	Stop() error
	Close()
}

// DeviceFactory opens an output device. It is called on the first Play.
type DeviceFactory func(sampleRate, channels int, fill FillFunc) (Device, error)

// ErrNoAudio is returned when Play is called before Load.
var ErrNoAudio = errors.New("preview: no audio loaded")

// Player plays a signal through a Graph at an adjustable rate.
type Player struct {
	newDevice DeviceFactory

	mu      sync.Mutex
	sig     *audio.Signal
	graph   *Graph
	speed   float64
	cursor  float64 // position in source frames
	playing bool
	ended   chan struct{}
	dev     Device
	block   [][]float32
}

// NewPlayer creates a player that opens its device with newDevice.
func NewPlayer(newDevice DeviceFactory) *Player {
	return &Player{newDevice: newDevice, speed: 1}
}

// Load replaces the current audio and resets every parameter to identity.
func (p *Player) Load(sig *audio.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}

	p.release()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sig = sig
	p.graph = NewGraph(sig.SampleRate, sig.NumChannels())
	p.speed = 1
	p.cursor = 0
	p.playing = false
	p.ended = make(chan struct{})
	p.block = make([][]float32, sig.NumChannels())
	return nil
}

// Graph returns the live EQ graph of the loaded audio.
func (p *Player) Graph() *Graph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph
}

// SetParams applies p: speed to the playback rate, the rest to the graph.
func (p *Player) SetParams(params fx.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.graph == nil {
		return ErrNoAudio
	}
	p.speed = params.Speed
	p.graph.SetParams(params)
	return nil
}

// Play starts or resumes playback, opening the device on first use.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.sig == nil {
		p.mu.Unlock()
		return ErrNoAudio
	}
	if p.dev == nil {
		p.graph.Activate()
		dev, err := p.newDevice(p.sig.SampleRate, p.sig.NumChannels(), p.Fill)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("opening output device: %w", err)
		}
		p.dev = dev
	}
	if p.cursor >= float64(p.sig.Frames()) {
		p.cursor = 0
		p.ended = make(chan struct{})
		p.graph.Reset()
	}
	p.playing = true
	dev := p.dev
	p.mu.Unlock()

	// the device callback takes p.mu, so it is never held across device calls
	return dev.Start()
}

// Pause stops pulling audio and keeps the position.
func (p *Player) Pause() error {
	p.mu.Lock()
	p.playing = false
	dev := p.dev
	p.mu.Unlock()

	if dev == nil {
		return nil
	}
	return dev.Stop()
}

// Position is the playback position in source time.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sig == nil {
		return 0
	}
	return time.Duration(p.cursor / float64(p.sig.SampleRate) * float64(time.Second))
}

// Wait blocks until the loaded audio has played to the end or ctx ends.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	ended := p.ended
	p.mu.Unlock()
	if ended == nil {
		return ErrNoAudio
	}
	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the device.
func (p *Player) Close() {
	p.release()
}

func (p *Player) release() {
	p.mu.Lock()
	dev := p.dev
	p.dev = nil
	p.playing = false
	p.mu.Unlock()

	if dev != nil {
		_ = dev.Stop()
		dev.Close()
	}
}

// Fill renders the next frames into out. It is the device callback and
// writes silence when paused or past the end.
func (p *Player) Fill(out []byte, frames uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clear(out)
	if p.sig == nil || !p.playing {
		return
	}

	n := int(frames)
	channels := p.sig.NumChannels()
	if need := n * channels * 4; len(out) < need {
		n = len(out) / (channels * 4)
	}
	for c := range p.block {
		if cap(p.block[c]) < n {
			p.block[c] = make([]float32, n)
		}
		p.block[c] = p.block[c][:n]
	}

	total := p.sig.Frames()
	last := total - 1
	for i := 0; i < n; i++ {
		if p.cursor >= float64(total) {
			for c := range p.block {
				p.block[c][i] = 0
			}
			continue
		}
		j := int(p.cursor)
		frac := float32(p.cursor - float64(j))
		for c, src := range p.sig.Channels {
			v := src[j]
			if j < last {
				v += (src[j+1] - v) * frac
			}
			p.block[c][i] = v
		}
		p.cursor += p.speed
	}

	p.graph.Process(p.block)

	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(p.block[c][i]))
		}
	}

	if p.cursor >= float64(total) && p.playing {
		p.playing = false
		select {
		case <-p.ended:
		default:
			close(p.ended)
		}
	}
}
