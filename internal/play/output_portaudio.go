//go:build portaudio

package play

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const portaudioOutput = true

const framesPerBuffer = 1024

// PortAudioDevice writes a decoded WAV file to the default output device.
// The position is the index of the next frame handed to the stream.
type PortAudioDevice struct {
	clip   *pcmClip
	buf    []int16
	stream *portaudio.Stream

	mu       sync.Mutex
	frame    int
	stop     chan struct{}
	done     chan struct{}
	released bool
}

func openPortAudio(path string) (Device, error) {
	clip, err := decodeWav(path)
	if err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	d := &PortAudioDevice{clip: clip, buf: make([]int16, framesPerBuffer*clip.channels)}
	stream, err := portaudio.OpenDefaultStream(0, clip.channels, float64(clip.rate), framesPerBuffer, d.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

func (d *PortAudioDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return errors.New("playback device released")
	}
	if d.stop != nil {
		select {
		case <-d.done:
			// ran off the end; restart from the current frame
			d.haltLocked()
		default:
			return nil
		}
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.pump(d.stop, d.done)
	return nil
}

func (d *PortAudioDevice) pump(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		d.mu.Lock()
		n := d.clip.fill(d.buf, d.frame)
		d.frame += n
		d.mu.Unlock()

		if n == 0 {
			return
		}
		if err := d.stream.Write(); err != nil {
			slog.Debug("Error writing audio", "error", err)
		}
	}
}

func (d *PortAudioDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.haltLocked()
}

// haltLocked stops the pump and the stream. The pump takes mu only between
// writes, so mu is released while waiting for it.
func (d *PortAudioDevice) haltLocked() error {
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	done := d.done
	d.stop, d.done = nil, nil

	d.mu.Unlock()
	<-done
	d.mu.Lock()

	return d.stream.Stop()
}

func (d *PortAudioDevice) Seek(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = d.clip.frameAt(pos)
	return nil
}

func (d *PortAudioDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.haltLocked()
	d.frame = 0
	return err
}

func (d *PortAudioDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.haltLocked()
	d.released = true
	err := d.stream.Close()
	portaudio.Terminate()
	return err
}

func (d *PortAudioDevice) Duration() time.Duration { return d.clip.duration() }

func (d *PortAudioDevice) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clip.positionOf(d.frame)
}
