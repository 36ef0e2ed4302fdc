package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/tapedeck/internal/config"
	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/ticker"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

// SessionInfo describes the take currently being recorded
type SessionInfo struct {
	OutputFile string    `json:"output_file"`
	StartTime  time.Time `json:"start_time"`
}

// Recorder drives a capture device for at most the configured duration,
// sampling its peak amplitude into a waveform store once per tick.
type Recorder struct {
	timing   config.TimingConfig
	factory  CaptureFactory
	store    *waveform.Store
	ticker   *ticker.Ticker
	clock    ticker.Clock
	listener media.Listener
	onSample func(waveform.Sample)

	// opMu serialises Start and Stop; mu guards the fields below and is the
	// only lock taken on the tick path.
	opMu      sync.Mutex
	mu        sync.Mutex
	device    CaptureDevice
	token     uint64
	recording bool
	session   *SessionInfo
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithRecorderClock drives the countdown from clock instead of wall time
func WithRecorderClock(clock ticker.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

// WithRecorderListener sets who receives Record and StopRecording events
func WithRecorderListener(l media.Listener) RecorderOption {
	return func(r *Recorder) { r.listener = l }
}

// WithSampleCallback is invoked after each sample is stored
func WithSampleCallback(fn func(waveform.Sample)) RecorderOption {
	return func(r *Recorder) { r.onSample = fn }
}

func NewRecorder(timing config.TimingConfig, factory CaptureFactory, store *waveform.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		timing:  timing,
		factory: factory,
		store:   store,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = ticker.RealClock{}
	}
	r.ticker = ticker.New(r.clock)
	return r
}

// Start clears the store, opens a capture device writing to target and begins
// sampling. Device failures leave the recorder idle and emit nothing.
func (r *Recorder) Start(target string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	busy := r.recording
	r.mu.Unlock()
	if busy {
		return errors.New("recorder already running")
	}

	dev, err := r.factory.NewCaptureDevice()
	if err != nil {
		if errors.Is(err, media.ErrDeviceUnavailable) {
			return err
		}
		return deviceUnavailable(err)
	}

	if err := dev.Prepare(target, r.timing.MaxDuration()); err != nil {
		releaseDevice(dev)
		return fmt.Errorf("%w: %w", media.ErrPrepareFailed, err)
	}
	if err := dev.Start(); err != nil {
		releaseDevice(dev)
		return deviceUnavailable(err)
	}

	r.store.Reset()

	r.mu.Lock()
	r.token++
	tok := r.token
	r.device = dev
	r.recording = true
	r.session = &SessionInfo{OutputFile: target, StartTime: r.clock.Now()}
	r.mu.Unlock()

	media.Emit(r.listener, media.EventRecord)

	slog.Info("Recording started", "file", target, "max_duration", r.timing.MaxDuration())

	r.ticker.Start(r.timing.TickInterval(), r.timing.MaxDuration(),
		func(t ticker.Tick) { r.onTick(tok, t) },
		func() { r.onFinish(tok) },
	)
	return nil
}

// Stop ends the current take and emits StopRecording. No sample is appended
// once Stop has returned. Calling it while idle only re-emits the event.
func (r *Recorder) Stop() {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.stopLocked()
}

func (r *Recorder) stopLocked() {
	r.mu.Lock()
	r.token++
	dev := r.device
	wasRecording := r.recording
	r.device = nil
	r.recording = false
	r.mu.Unlock()

	r.ticker.Cancel()

	if dev != nil {
		releaseDevice(dev)
	}
	if wasRecording {
		slog.Info("Recording stopped", "samples", r.store.Len(), "duration_ms", r.store.DurationMs())
	}

	media.Emit(r.listener, media.EventStopRecording)
}

func (r *Recorder) onTick(tok uint64, t ticker.Tick) {
	r.mu.Lock()
	if tok != r.token || !r.recording {
		r.mu.Unlock()
		return
	}

	sample := waveform.Sample{
		TimeMs:    ElapsedMs(r.timing.MaxDuration(), t.Remaining, r.timing.TickInterval()),
		Amplitude: r.device.PeakAmplitude(),
	}
	err := r.store.Append(sample)
	r.mu.Unlock()

	if err != nil {
		slog.Warn("Dropped waveform sample", "time_ms", sample.TimeMs, "error", err)
		return
	}
	if r.onSample != nil {
		r.onSample(sample)
	}
}

// onFinish runs on the countdown goroutine after it has detached
func (r *Recorder) onFinish(tok uint64) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	current := tok == r.token && r.recording
	r.mu.Unlock()
	if !current {
		return
	}

	slog.Debug("Recording reached maximum duration")
	r.stopLocked()
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Session returns the active take, or the last one after it stopped
func (r *Recorder) Session() *SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

func (r *Recorder) Store() *waveform.Store {
	return r.store
}

// ElapsedMs converts a countdown reading into the sample timestamp: readings
// within one tick of the end report the full duration, readings just past a
// whole second snap down to it, and readings inside the first tick report zero.
func ElapsedMs(max, remaining, tick time.Duration) uint64 {
	maxMs := max.Milliseconds()
	remMs := remaining.Milliseconds()
	tickMs := tick.Milliseconds()

	elapsed := maxMs - remMs
	if remMs < tickMs {
		elapsed = maxMs
	}

	if elapsed > 1000 && elapsed%1000 < tickMs {
		elapsed -= elapsed % 1000
	} else if elapsed < tickMs {
		elapsed = 0
	}

	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed)
}

func releaseDevice(dev CaptureDevice) {
	if err := dev.Stop(); err != nil {
		slog.Warn("Capture device stop failed", "error", err)
	}
	if err := dev.Release(); err != nil {
		slog.Warn("Capture device release failed", "error", err)
	}
}
