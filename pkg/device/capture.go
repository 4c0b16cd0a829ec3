package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/skip-silence/pkg/audio"
	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

// Mode selects which device a CaptureSource records from.
type Mode string

const (
	// ModeMicrophone records the default capture device.
	ModeMicrophone Mode = "microphone"
	// ModeLoopback records what the system is playing. Backend support varies.
	ModeLoopback Mode = "loopback"
)

const captureSampleRate = 44100

// CaptureSource taps audio from a system device instead of the player. Its
// taps cannot attenuate the media, so mute-during-silence has no effect.
type CaptureSource struct {
	mode      Mode
	frameSize int
	logger    skipper.Logger
}

func NewCaptureSource(mode Mode, frameSize int, logger skipper.Logger) *CaptureSource {
	if logger == nil {
		logger = &skipper.NoOpLogger{}
	}
	return &CaptureSource{mode: mode, frameSize: frameSize, logger: logger}
}

func (c *CaptureSource) Name() string {
	return string(c.mode)
}

// Acquire opens the capture device. Any device failure is reported as
// skipper.ErrCaptureUnavailable since retrying will not help.
func (c *CaptureSource) Acquire(ctx context.Context) (skipper.AnalysisTap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deviceType := malgo.Capture
	if c.mode == ModeLoopback {
		deviceType = malgo.Loopback
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", skipper.ErrCaptureUnavailable, err)
	}

	tap := &captureTap{mctx: mctx, analyser: audio.NewAnalyser(c.frameSize)}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = captureSampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: tap.onSamples,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: init %s device: %v", skipper.ErrCaptureUnavailable, c.mode, err)
	}
	tap.device = device

	if err := device.Start(); err != nil {
		_ = tap.Close()
		return nil, fmt.Errorf("%w: start %s device: %v", skipper.ErrCaptureUnavailable, c.mode, err)
	}

	c.logger.Info("capture device started", "mode", c.mode)
	return tap, nil
}

type captureTap struct {
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	analyser *audio.Analyser

	scratch []float32
	once    sync.Once
}

func (t *captureTap) onSamples(_, pInput []byte, _ uint32) {
	if pInput == nil {
		return
	}
	n := len(pInput) / 2
	if cap(t.scratch) < n {
		t.scratch = make([]float32, n)
	}
	buf := t.scratch[:n]
	decodeS16(buf, pInput)
	t.analyser.Write(buf)
}

func (t *captureTap) TimeDomainSamples(buf []float32) {
	t.analyser.TimeDomainSamples(buf)
}

func (t *captureTap) Gain() skipper.GainControl {
	return nil
}

func (t *captureTap) Close() error {
	t.once.Do(func() {
		if t.device != nil {
			t.device.Uninit()
		}
		_ = t.mctx.Uninit()
		t.mctx.Free()
	})
	return nil
}
