package play

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// pcmClip is a decoded WAV file held in memory as interleaved 16-bit samples
type pcmClip struct {
	samples  []int16
	channels int
	rate     int
}

func (c *pcmClip) frames() int { return len(c.samples) / c.channels }

func (c *pcmClip) duration() time.Duration {
	return time.Duration(c.frames()) * time.Second / time.Duration(c.rate)
}

// frameAt converts a position into a frame index within the clip
func (c *pcmClip) frameAt(pos time.Duration) int {
	f := int(pos * time.Duration(c.rate) / time.Second)
	return min(max(f, 0), c.frames())
}

func (c *pcmClip) positionOf(frame int) time.Duration {
	return time.Duration(frame) * time.Second / time.Duration(c.rate)
}

// fill copies frames starting at frame into buf, zero-filling the rest, and
// returns how many frames were copied
func (c *pcmClip) fill(buf []int16, frame int) int {
	n := copy(buf, c.samples[min(frame*c.channels, len(c.samples)):])
	clear(buf[n:])
	return n / c.channels
}

func decodeWav(path string) (*pcmClip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("WAV file without format: %s", path)
	}

	depth := int(dec.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, depth)
	}
	return &pcmClip{samples: samples, channels: buf.Format.NumChannels, rate: buf.Format.SampleRate}, nil
}

// toInt16 rescales a sample of the given bit depth; 8-bit WAV is unsigned
func toInt16(v, depth int) int16 {
	switch {
	case depth == 8:
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v)
	}
}
