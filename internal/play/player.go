package play

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/ticker"
)

// Cursor is the playback position within a fixed duration
type Cursor struct {
	PositionMs uint64 `json:"position_ms"`
	DurationMs uint64 `json:"duration_ms"`
}

// Player owns one playback device and a countdown covering what is left to
// play. Elapsed reports are duration minus the countdown's remaining time.
type Player struct {
	factory   Factory
	tick      time.Duration
	ticker    *ticker.Ticker
	listener  media.Listener
	onElapsed func(time.Duration)

	opMu     sync.Mutex
	mu       sync.Mutex
	device   Device
	duration time.Duration
	position time.Duration
	token    uint64
}

// Option configures a Player
type Option func(*playerOptions)

type playerOptions struct {
	clock     ticker.Clock
	listener  media.Listener
	onElapsed func(time.Duration)
}

func WithClock(clock ticker.Clock) Option {
	return func(o *playerOptions) { o.clock = clock }
}

// WithListener sets who receives Play, Pause and FinishPlaying events
func WithListener(l media.Listener) Option {
	return func(o *playerOptions) { o.listener = l }
}

// WithElapsedCallback receives the playback position on every tick, and zero
// when playback finishes.
func WithElapsedCallback(fn func(time.Duration)) Option {
	return func(o *playerOptions) { o.onElapsed = fn }
}

func New(tick time.Duration, factory Factory, opts ...Option) *Player {
	var o playerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Player{
		factory:   factory,
		tick:      tick,
		ticker:    ticker.New(o.clock),
		listener:  o.listener,
		onElapsed: o.onElapsed,
	}
}

func (p *Player) SetDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duration = d
}

func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *Player) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Cursor{
		PositionMs: uint64(min(max(p.position, 0), max(p.duration, 0)).Milliseconds()),
		DurationMs: uint64(max(p.duration, 0).Milliseconds()),
	}
}

// Play starts source from the beginning
func (p *Player) Play(source string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	duration, err := p.checkDuration("play")
	if err != nil {
		return err
	}

	dev, err := p.create(source)
	if err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		releaseDevice(dev)
		return fmt.Errorf("%w: %w", media.ErrDeviceUnavailable, err)
	}

	p.mu.Lock()
	old := p.device
	p.device = dev
	p.position = 0
	p.mu.Unlock()
	if old != nil {
		releaseDevice(old)
	}

	slog.Info("Playback started", "source", source, "duration", duration)
	media.Emit(p.listener, media.EventPlay)
	p.startTimer(duration, duration)
	return nil
}

// Resume continues from the remembered position, re-acquiring the device if
// playback had stopped. A position at or past the end restarts from zero.
func (p *Player) Resume(source string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	duration, err := p.checkDuration("resume")
	if err != nil {
		return err
	}

	p.mu.Lock()
	dev := p.device
	pos := p.position
	if pos >= duration || pos < 0 {
		pos = 0
	}
	p.position = pos
	p.mu.Unlock()

	if dev == nil {
		if dev, err = p.create(source); err != nil {
			return err
		}
		p.mu.Lock()
		p.device = dev
		p.mu.Unlock()
	}

	if err := dev.Seek(pos); err != nil {
		slog.Warn("Playback seek failed", "position", pos, "error", err)
	}
	if err := dev.Start(); err != nil {
		slog.Warn("Playback start failed", "error", err)
	}

	slog.Debug("Playback resumed", "position", pos)
	media.Emit(p.listener, media.EventPlay)
	p.runFrom(duration, pos)
	return nil
}

// Pause halts output and remembers the position
func (p *Player) Pause() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.pauseLocked()
	media.Emit(p.listener, media.EventPause)
}

// PauseForScrub halts output while the user drags, leaving the state alone
func (p *Player) PauseForScrub() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.pauseLocked()
}

// pauseLocked stops the countdown and output. The device's own position
// replaces the last tick's, which can trail it by up to one interval.
func (p *Player) pauseLocked() {
	p.stopTimer()

	p.mu.Lock()
	dev := p.device
	p.mu.Unlock()

	if dev == nil {
		return
	}
	if err := dev.Pause(); err != nil {
		slog.Warn("Playback pause failed", "error", err)
	}
	pos := dev.Position()

	p.mu.Lock()
	p.position = min(max(pos, 0), p.duration)
	p.mu.Unlock()
}

// SeekTo stores the position used by the next Resume, clamped to the duration
func (p *Player) SeekTo(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = min(max(pos, 0), p.duration)
}

// SeekWhileRunning moves the live device to pos and restarts the countdown
// for the rest of the duration without emitting an event.
func (p *Player) SeekWhileRunning(pos time.Duration) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.stopTimer()

	p.mu.Lock()
	duration := p.duration
	pos = min(max(pos, 0), duration)
	p.position = pos
	dev := p.device
	p.mu.Unlock()

	if dev != nil {
		if err := dev.Seek(pos); err != nil {
			slog.Warn("Playback seek failed", "position", pos, "error", err)
		}
		if err := dev.Start(); err != nil {
			slog.Warn("Playback start failed", "error", err)
		}
	}

	p.runFrom(duration, pos)
}

// Stop releases the device and emits FinishPlaying. Safe in any state.
func (p *Player) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	p.stopTimer()

	p.mu.Lock()
	dev := p.device
	p.device = nil
	p.mu.Unlock()

	if dev != nil {
		releaseDevice(dev)
		slog.Info("Playback stopped")
	}
	media.Emit(p.listener, media.EventFinishPlaying)
}

// Active reports whether a countdown is running
func (p *Player) Active() bool {
	return p.ticker.Running()
}

func (p *Player) checkDuration(op string) (time.Duration, error) {
	p.mu.Lock()
	duration := p.duration
	p.mu.Unlock()

	if duration <= 0 {
		slog.Error("Playback requested without a duration", "operation", op, "duration", duration)
		return 0, fmt.Errorf("%s: %w", op, media.ErrInvalidDuration)
	}
	return duration, nil
}

func (p *Player) create(source string) (Device, error) {
	dev, err := p.factory.Create(source)
	if err != nil {
		if errors.Is(err, media.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", media.ErrDeviceUnavailable, err)
	}
	return dev, nil
}

func (p *Player) startTimer(duration, length time.Duration) {
	p.mu.Lock()
	p.token++
	tok := p.token
	p.mu.Unlock()

	p.ticker.Start(p.tick, length,
		func(t ticker.Tick) { p.onTick(tok, duration, t) },
		func() { p.onFinish(tok) },
	)
}

func (p *Player) stopTimer() {
	p.mu.Lock()
	p.token++
	p.mu.Unlock()
	p.ticker.Cancel()
}

func (p *Player) onTick(tok uint64, duration time.Duration, t ticker.Tick) {
	p.mu.Lock()
	if tok != p.token {
		p.mu.Unlock()
		return
	}
	elapsed := duration - t.Remaining
	p.position = elapsed
	p.mu.Unlock()

	if p.onElapsed != nil {
		p.onElapsed(elapsed)
	}
}

func (p *Player) onFinish(tok uint64) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	current := tok == p.token
	p.mu.Unlock()
	if current {
		p.finishLocked()
	}
}

// runFrom counts down what is left after pos, finishing at once when nothing is
func (p *Player) runFrom(duration, pos time.Duration) {
	if duration-pos <= 0 {
		p.finishLocked()
		return
	}
	p.startTimer(duration, duration-pos)
}

func (p *Player) finishLocked() {
	p.mu.Lock()
	p.position = 0
	p.mu.Unlock()

	if p.onElapsed != nil {
		p.onElapsed(0)
	}
	p.stopLocked()
}

func releaseDevice(dev Device) {
	if err := dev.Stop(); err != nil {
		slog.Warn("Playback device stop failed", "error", err)
	}
	if err := dev.Release(); err != nil {
		slog.Warn("Playback device release failed", "error", err)
	}
}
