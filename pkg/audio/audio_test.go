package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

func rampClip(frames, channels, sampleRate int) *Clip {
	samples := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = float32(i) / float32(frames)
		}
	}
	return &Clip{Samples: samples, Channels: channels, SampleRate: sampleRate}
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestClip_Duration(t *testing.T) {
	clip := rampClip(8000, 2, 4000)
	if clip.Frames() != 8000 {
		t.Errorf("expected 8000 frames, got %d", clip.Frames())
	}
	if clip.Duration() != 2*time.Second {
		t.Errorf("expected 2s, got %v", clip.Duration())
	}
}

func TestWav_EncodeDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	clip := rampClip(100, 2, 8000)
	clip.Samples[0] = -1
	if err := EncodeWAV(f, clip); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		t.Fatalf("missing RIFF/WAVE header")
	}

	decoded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if decoded.Channels != 2 || decoded.SampleRate != 8000 {
		t.Errorf("unexpected format: %d channels at %d Hz", decoded.Channels, decoded.SampleRate)
	}
	if len(decoded.Samples) != len(clip.Samples) {
		t.Fatalf("expected %d samples, got %d", len(clip.Samples), len(decoded.Samples))
	}
	for i := range clip.Samples {
		if !near(float64(decoded.Samples[i]), float64(clip.Samples[i]), 1e-3) {
			t.Fatalf("sample %d: expected %f, got %f", i, clip.Samples[i], decoded.Samples[i])
		}
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for .ogg")
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	if _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestAnalyser_KeepsNewestSamples(t *testing.T) {
	a := NewAnalyser(4)
	a.Write([]float32{1, 2, 3, 4, 5, 6})

	buf := make([]float32, 4)
	a.TimeDomainSamples(buf)
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, buf)
		}
	}
}

func TestAnalyser_MixesDown(t *testing.T) {
	a := NewAnalyser(2)
	a.WriteInterleaved([]float32{1, 0, 0.5, 0.5}, 2)

	buf := make([]float32, 2)
	a.TimeDomainSamples(buf)
	if buf[0] != 0.5 || buf[1] != 0.5 {
		t.Errorf("expected [0.5 0.5], got %v", buf)
	}
}

func TestGain_RampsTowardsTarget(t *testing.T) {
	g := NewGain(1000)
	g.SetGain(0, 15*time.Millisecond)

	frame := make([]float32, 10)
	for i := range frame {
		frame[i] = 1
	}
	g.Process(frame, 1)
	if frame[0] >= 1 || frame[0] <= 0 {
		t.Errorf("first sample should be partially attenuated, got %f", frame[0])
	}
	if frame[9] >= frame[0] {
		t.Errorf("gain should keep falling: %f then %f", frame[0], frame[9])
	}

	long := make([]float32, 1000)
	g.Process(long, 1)
	if g.Value() > 0.01 {
		t.Errorf("expected gain near 0 after 1s, got %f", g.Value())
	}
}

func TestGain_ZeroTimeConstantJumps(t *testing.T) {
	g := NewGain(1000)
	g.SetGain(0.25, 0)
	if g.Value() != 0.25 {
		t.Errorf("expected immediate 0.25, got %f", g.Value())
	}
}

func TestPlayer_RateAdvancesPosition(t *testing.T) {
	p := NewPlayer(rampClip(10, 1, 10))
	p.SetPlaybackRate(2)

	out := make([]float32, 3)
	if n := p.Read(out); n != 3 {
		t.Fatalf("expected 3 frames, got %d", n)
	}
	want := []float64{0, 0.2, 0.4}
	for i := range want {
		if !near(float64(out[i]), want[i], 1e-6) {
			t.Fatalf("expected %v, got %v", want, out)
		}
	}
	if p.Position() != 600*time.Millisecond {
		t.Errorf("expected position 600ms, got %v", p.Position())
	}
}

func TestPlayer_EndsAndPadsWithSilence(t *testing.T) {
	p := NewPlayer(rampClip(4, 1, 10))
	out := make([]float32, 8)
	for i := range out {
		out[i] = 9
	}
	if n := p.Read(out); n != 4 {
		t.Fatalf("expected 4 frames, got %d", n)
	}
	for i := 4; i < 8; i++ {
		if out[i] != 0 {
			t.Fatalf("expected silence after end, got %v", out)
		}
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("done channel should be closed")
	}
	if !p.Paused() {
		t.Error("ended player should report paused")
	}
}

func TestPlayer_PausedReadsSilence(t *testing.T) {
	p := NewPlayer(rampClip(10, 1, 10))
	p.Read(make([]float32, 2))
	p.Pause()

	out := []float32{9, 9}
	if n := p.Read(out); n != 0 || out[0] != 0 || out[1] != 0 {
		t.Fatalf("expected silence while paused, got %d %v", n, out)
	}
	p.Play()
	if n := p.Read(out); n != 2 || !near(float64(out[0]), 0.2, 1e-6) {
		t.Fatalf("expected playback to resume at frame 2, got %v", out)
	}
}

func TestPlayer_CaptureListenersRunFirst(t *testing.T) {
	p := NewPlayer(rampClip(10, 1, 10))

	var order []string
	p.OnRateChange(false, func(*skipper.RateChangeEvent) { order = append(order, "bubble") })
	p.OnRateChange(true, func(*skipper.RateChangeEvent) { order = append(order, "capture") })

	p.SetPlaybackRate(2)
	if len(order) != 2 || order[0] != "capture" || order[1] != "bubble" {
		t.Errorf("expected capture then bubble, got %v", order)
	}
}

func TestPlayer_StopPropagation(t *testing.T) {
	p := NewPlayer(rampClip(10, 1, 10))

	bubbled := false
	p.OnRateChange(false, func(*skipper.RateChangeEvent) { bubbled = true })
	remove := p.OnRateChange(true, func(e *skipper.RateChangeEvent) { e.StopImmediatePropagation() })

	p.SetPlaybackRate(2)
	if bubbled {
		t.Error("stopped event reached bubbling listener")
	}

	remove()
	p.SetPlaybackRate(3)
	if !bubbled {
		t.Error("listener should run after interceptor removal")
	}
}

func TestPlayer_ListenerMayResetRate(t *testing.T) {
	p := NewPlayer(rampClip(10, 1, 10))
	p.OnRateChange(false, func(e *skipper.RateChangeEvent) {
		if e.Rate != 1 {
			p.SetPlaybackRate(1)
		}
	})

	p.SetPlaybackRate(2)
	if p.PlaybackRate() != 1 {
		t.Errorf("expected host reset to 1, got %f", p.PlaybackRate())
	}
}

func TestElementSource_TapSeesSignalBeforeGain(t *testing.T) {
	p := NewPlayer(&Clip{Samples: []float32{0.5, 0.5, 0.5, 0.5}, Channels: 1, SampleRate: 1000})
	src := NewElementSource(p, 4)

	tap, err := src.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	tap.Gain().SetGain(0, 0)

	out := make([]float32, 4)
	p.Read(out)
	if out[0] != 0 {
		t.Errorf("output should be muted, got %v", out)
	}

	buf := make([]float32, 4)
	tap.TimeDomainSamples(buf)
	if buf[3] != 0.5 {
		t.Errorf("analyser should see unmuted signal, got %v", buf)
	}

	if err := tap.Close(); err != nil {
		t.Fatal(err)
	}
	if p.Gain().Value() != 1 {
		t.Errorf("closing the tap should restore gain, got %f", p.Gain().Value())
	}
}

func TestElementSource_CancelledContext(t *testing.T) {
	src := NewElementSource(NewPlayer(rampClip(10, 1, 10)), 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Acquire(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func pcm8WAV(sampleRate int, data []byte) []byte {
	var b bytes.Buffer
	put := func(v interface{}) { _ = binary.Write(&b, binary.LittleEndian, v) }

	b.WriteString("RIFF")
	put(uint32(36 + len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	put(uint32(16))
	put(uint16(1))
	put(uint16(1))
	put(uint32(sampleRate))
	put(uint32(sampleRate))
	put(uint16(1))
	put(uint16(8))
	b.WriteString("data")
	put(uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestDecodeWAV_EightBitIsCentered(t *testing.T) {
	clip, err := DecodeWAV(bytes.NewReader(pcm8WAV(8000, []byte{128, 128, 255, 0})))
	if err != nil {
		t.Fatal(err)
	}
	if clip.Channels != 1 || clip.SampleRate != 8000 {
		t.Fatalf("unexpected format %d ch @ %d Hz", clip.Channels, clip.SampleRate)
	}

	want := []float64{0, 0, 127.0 / 128, -1}
	if len(clip.Samples) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(clip.Samples))
	}
	for i, w := range want {
		if !near(float64(clip.Samples[i]), w, 1e-6) {
			t.Errorf("sample %d: expected %v, got %v", i, w, clip.Samples[i])
		}
	}
}
