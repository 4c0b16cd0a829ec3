package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Clip is decoded PCM audio held in memory. Samples are interleaved and
// normalised to [-1, 1].
type Clip struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Load decodes a WAV or MP3 file based on its extension.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var clip *Clip
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		clip, err = DecodeWAV(f)
	case ".mp3":
		clip, err = DecodeMP3(f)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return clip, nil
}
