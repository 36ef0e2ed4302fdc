package play

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/audiolibrelab/tapedeck/internal/ticker"
)

// Device is the playback-side collaborator of the Player
type Device interface {
	Start() error
	Pause() error
	Seek(pos time.Duration) error
	Stop() error
	Release() error
	// Duration is informational; the Player's duration comes from SetDuration
	Duration() time.Duration
	// Position is where output currently is
	Position() time.Duration
}

// Factory creates a Device for a source
type Factory interface {
	Create(source string) (Device, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(source string) (Device, error)

func (f FactoryFunc) Create(source string) (Device, error) { return f(source) }

// FileDevice is the silent output: it opens the file for its duration and
// moves a clock-driven playhead without producing sound.
type FileDevice struct {
	path     string
	duration time.Duration
	head     *Playhead

	mu       sync.Mutex
	released bool
}

func OpenFile(path string, clock ticker.Clock) (*FileDevice, error) {
	duration, err := ReadDuration(path)
	if err != nil {
		return nil, err
	}
	return &FileDevice{path: path, duration: duration, head: NewPlayhead(clock, duration)}, nil
}

func (d *FileDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return errors.New("playback device released")
	}
	d.head.Run()
	return nil
}

func (d *FileDevice) Pause() error {
	d.head.Hold()
	return nil
}

func (d *FileDevice) Seek(pos time.Duration) error {
	d.head.MoveTo(pos)
	return nil
}

func (d *FileDevice) Stop() error {
	d.head.Reset()
	return nil
}

func (d *FileDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.head.Hold()
	d.released = true
	return nil
}

func (d *FileDevice) Duration() time.Duration { return d.duration }

// Position reports the playhead
func (d *FileDevice) Position() time.Duration { return d.head.Position() }

// ReadDuration reads the length of a wav, mp3 or ogg file
func ReadDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audio file not found: %s", path)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		dec := wav.NewDecoder(f)
		if !dec.IsValidFile() {
			return 0, fmt.Errorf("invalid WAV file: %s", path)
		}
		return dec.Duration()
	case ".mp3":
		dec, err := gomp3.NewDecoder(f)
		if err != nil {
			return 0, fmt.Errorf("failed to decode mp3: %w", err)
		}
		// 16-bit stereo output, four bytes per frame
		frames := dec.Length() / 4
		return time.Duration(frames) * time.Second / time.Duration(dec.SampleRate()), nil
	case ".ogg":
		r, err := oggvorbis.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to decode ogg: %w", err)
		}
		return time.Duration(r.Length()) * time.Second / time.Duration(r.SampleRate()), nil
	default:
		return 0, fmt.Errorf("unsupported audio format %q", ext)
	}
}
