package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/skip-silence/pkg/audio"
	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// Output plays a Player on the default playback device.
type Output struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	player *audio.Player
	logger skipper.Logger

	// scratch is only touched from the device callback.
	scratch []float32

	closeOnce sync.Once
}

func OpenOutput(player *audio.Player, logger skipper.Logger) (*Output, error) {
	if logger == nil {
		logger = &skipper.NoOpLogger{}
	}
	clip := player.Clip()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	o := &Output{mctx: mctx, player: player, logger: logger}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(clip.Channels)
	deviceConfig.SampleRate = uint32(clip.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: o.onSamples,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	o.device = device
	return o, nil
}

func (o *Output) onSamples(pOutput, _ []byte, frameCount uint32) {
	if pOutput == nil {
		return
	}
	n := int(frameCount) * o.player.Clip().Channels
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	buf := o.scratch[:n]
	o.player.Read(buf)
	written := encodeS16(pOutput, buf)
	for i := written * 2; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
}

func (o *Output) Start() error {
	if err := o.device.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	o.logger.Info("playback started", "channels", o.player.Clip().Channels, "sample_rate", o.player.Clip().SampleRate)
	return nil
}

func (o *Output) Close() error {
	o.closeOnce.Do(func() {
		o.device.Uninit()
		_ = o.mctx.Uninit()
		o.mctx.Free()
	})
	return nil
}
