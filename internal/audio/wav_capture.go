package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const framesPerBuffer = 1024

// WavCapture writes a Source into a 16-bit mono WAV file and tracks the peak
// amplitude between reads. Writing stops on its own at the prepared cap.
type WavCapture struct {
	source Source

	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	maxFrames int
	stop      chan struct{}
	done      chan struct{}
	released  bool

	peak atomic.Uint32
}

func NewWavCapture(source Source) *WavCapture {
	return &WavCapture{source: source}
}

// Prepare opens the source and creates target, truncating any previous take
func (c *WavCapture) Prepare(target string, maxDuration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return errors.New("capture device already released")
	}
	if c.file != nil {
		return errors.New("capture device already prepared")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := c.source.Open(); err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		c.source.Close()
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	rate := c.source.SampleRate()
	c.file = file
	c.encoder = wav.NewEncoder(file, rate, 16, 1, 1)
	c.maxFrames = int(int64(rate) * maxDuration.Milliseconds() / 1000)
	return nil
}

func (c *WavCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.encoder == nil {
		return errors.New("capture device not prepared")
	}
	if c.stop != nil {
		return errors.New("capture device already started")
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.pump(c.stop, c.done)
	return nil
}

func (c *WavCapture) pump(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pcm := make([]int16, framesPerBuffer)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.source.SampleRate()},
		Data:           make([]int, framesPerBuffer),
		SourceBitDepth: 16,
	}

	written := 0
	for written < c.maxFrames {
		select {
		case <-stop:
			return
		default:
		}

		n, err := c.source.Read(pcm)
		if err != nil {
			slog.Error("Audio source read failed", "error", err)
			return
		}
		n = min(n, c.maxFrames-written)

		var peak uint32
		for i := 0; i < n; i++ {
			v := int(pcm[i])
			buf.Data[i] = v
			if v < 0 {
				v = -v
			}
			if uint32(v) > peak {
				peak = uint32(v)
			}
		}
		c.raisePeak(peak)

		chunk := &goaudio.IntBuffer{Format: buf.Format, Data: buf.Data[:n], SourceBitDepth: 16}
		if err := c.encoder.Write(chunk); err != nil {
			slog.Error("WAV write failed", "error", err)
			return
		}
		written += n
	}
	slog.Debug("Capture reached its duration cap", "frames", written)
}

func (c *WavCapture) raisePeak(v uint32) {
	for {
		cur := c.peak.Load()
		if v <= cur || c.peak.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (c *WavCapture) PeakAmplitude() uint32 {
	return c.peak.Swap(0)
}

// Stop ends capture and finalises the WAV header. Calling it again is a no-op.
func (c *WavCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *WavCapture) stopLocked() error {
	if c.stop != nil {
		close(c.stop)
		<-c.done
		c.stop = nil
	}

	var errs []error
	if c.encoder != nil {
		if err := c.encoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finalise wav: %w", err))
		}
		c.encoder = nil
	}
	if c.file != nil {
		if err := c.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close recording: %w", err))
		}
		c.file = nil
	}
	return errors.Join(errs...)
}

// Release stops capture if needed and closes the source
func (c *WavCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true

	err := c.stopLocked()
	if cerr := c.source.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close audio source: %w", cerr))
	}
	return err
}
