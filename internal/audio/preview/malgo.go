package preview

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

type malgoDevice struct {
	ctx *malgo.AllocatedContext
	dev *malgo.Device
}

// OpenSpeaker opens the default playback device through miniaudio. It
// satisfies DeviceFactory.
func OpenSpeaker(sampleRate, channels int, fill FillFunc) (Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frames uint32) {
			fill(out, frames)
		},
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("initializing playback device: %w", err)
	}
	return &malgoDevice{ctx: ctx, dev: dev}, nil
}

func (d *malgoDevice) Start() error { return d.dev.Start() }
func (d *malgoDevice) Stop() error  { return d.dev.Stop() }

func (d *malgoDevice) Close() {
	d.dev.Uninit()
	_ = d.ctx.Uninit()
	d.ctx.Free()
}
