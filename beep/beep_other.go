//go:build !linux

package beep

import (
	"time"

	"github.com/gen2brain/malgo"
)

func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 2
	cfg.SampleRate = sampleRate

	pos := 0
	done := make(chan struct{})
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			for i := uint32(0); i < frameCount*2; i++ {
				var s int16
				if pos < len(samples) {
					s = samples[pos]
					pos++
				}
				out[i*2] = byte(s)
				out[i*2+1] = byte(s >> 8)
			}
			if pos >= len(samples) {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		return
	}
	select {
	case <-done:
		// drain the last buffered frames
		time.Sleep(100 * time.Millisecond)
	case <-time.After(2 * time.Second):
	}
}
