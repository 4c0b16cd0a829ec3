package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a PCM WAV stream into a Clip.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, errors.New("wav file has no channels")
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(decoder.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}
	scale := float32(int64(1) << (depth - 1))

	// 8-bit PCM is unsigned with silence at 128.
	offset := 0
	if depth == 8 {
		offset = 128
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v-offset) / scale
	}

	return &Clip{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// EncodeWAV writes the clip as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, clip *Clip) error {
	encoder := wav.NewEncoder(w, clip.SampleRate, 16, clip.Channels, 1)

	data := make([]int, len(clip.Samples))
	for i, sample := range clip.Samples {
		if sample > 1 {
			sample = 1
		}
		if sample < -1 {
			sample = -1
		}
		data[i] = int(sample * 32767)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: clip.Channels,
			SampleRate:  clip.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return encoder.Close()
}
