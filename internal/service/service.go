package service

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/tapedeck/internal/audio"
	"github.com/audiolibrelab/tapedeck/internal/config"
	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/play"
	"github.com/audiolibrelab/tapedeck/internal/scrub"
	"github.com/audiolibrelab/tapedeck/internal/ticker"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

// Service represents the recording screen's user actions and its read model
type Service interface {
	// Recording operations
	Record() error
	StopRecording() error

	// Playback operations
	TogglePlay() error

	// Scrub operations
	DragStart()
	Drag(dx float64) float64
	DragEnd()

	// Read model
	Snapshot() Snapshot
	Subscribe(fn func(Snapshot)) func()

	// Information operations
	GetConfig() *config.Config
	GetFileInfo() (*FileInfo, error)
	GetLastError() string

	Close() error
}

// FileInfo describes the working file
type FileInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	DurationMs   uint64    `json:"duration_ms"`
}

// Session wires the recorder, player, state machine and scrub translator
// around a single working file.
type Session struct {
	cfg     *config.Config
	machine *media.Machine
	store   *waveform.Store
	scrub   *scrub.Translator
	scale   waveform.BarScale

	recorder *audio.Recorder
	player   *play.Player

	// actMu serialises user actions; callbacks never take it
	actMu sync.Mutex

	mu      sync.Mutex
	id      string
	timerMs uint64

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
	unwatch func()

	lastError      string
	lastErrorMutex sync.RWMutex
}

// Option configures a Session
type Option func(*options)

type options struct {
	clock    ticker.Clock
	capture  audio.CaptureFactory
	playback play.Factory
}

// WithClock drives both countdowns from clock
func WithClock(clock ticker.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithCaptureFactory(f audio.CaptureFactory) Option {
	return func(o *options) { o.capture = f }
}

func WithPlaybackFactory(f play.Factory) Option {
	return func(o *options) { o.playback = f }
}

// New creates a session in the Idle state
func New(cfg *config.Config, opts ...Option) *Session {
	o := options{clock: ticker.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capture == nil {
		o.capture = audio.NewCaptureFactory(cfg)
	}
	if o.playback == nil {
		o.playback = play.NewFactory(cfg.Audio.Output, o.clock)
	}

	s := &Session{
		cfg:     cfg,
		machine: media.NewMachine(),
		store:   waveform.NewStore(),
		scrub: scrub.NewTranslator(scrub.Geometry{
			BarWidth:      cfg.Waveform.BarWidth,
			BarSpacing:    cfg.Waveform.BarSpacing,
			ViewportWidth: cfg.Waveform.ViewportWidth,
		}),
		scale: waveform.BarScale{
			MaxReportable: cfg.Waveform.MaxReportableAmplitude,
			MaxHeight:     cfg.Waveform.MaxBarHeight,
			MinHeight:     cfg.Waveform.MinBarHeight,
		},
		subs: make(map[int]func(Snapshot)),
	}

	s.recorder = audio.NewRecorder(cfg.Timing, o.capture, s.store,
		audio.WithRecorderClock(o.clock),
		audio.WithRecorderListener(s.machine),
		audio.WithSampleCallback(func(waveform.Sample) { s.publish() }),
	)
	s.player = play.New(cfg.Timing.TickInterval(), o.playback,
		play.WithClock(o.clock),
		play.WithListener(s.machine),
		play.WithElapsedCallback(s.onElapsed),
	)
	s.unwatch = s.machine.Watch(func(from, to media.State) {
		slog.Debug("Session state changed", "session", s.SessionID(), "from", from, "to", to)
		s.publish()
	})
	return s
}

// Record starts a new take over the previous one. The previous take stays
// playable until the capture device has started.
func (s *Session) Record() error {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	if !s.machine.Can(media.EventRecord) {
		slog.Debug("Record ignored", "state", s.machine.State())
		return nil
	}
	s.clearLastError()

	// the player must let go of the working file before it is rewritten
	s.player.Stop()

	id := uuid.NewString()
	s.mu.Lock()
	prevID := s.id
	s.id = id
	s.mu.Unlock()

	target := s.cfg.Output.WorkingFile()
	if err := s.recorder.Start(target); err != nil {
		s.mu.Lock()
		s.id = prevID
		s.mu.Unlock()
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}

	s.player.SetDuration(0)
	s.player.SeekTo(0)
	s.scrub.Reset()
	s.mu.Lock()
	s.timerMs = 0
	s.mu.Unlock()
	s.publish()

	slog.Info("Session recording", "session", id, "file", target)
	return nil
}

// StopRecording ends the current take
func (s *Session) StopRecording() error {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	s.recorder.Stop()
	return nil
}

// TogglePlay is the play/pause button: it starts playback from the centred
// sample, or pauses a running playback.
func (s *Session) TogglePlay() error {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	var err error
	switch state := s.machine.State(); state {
	case media.StateStoppedRecording, media.StateStoppedPlaying, media.StatePausedPlaying:
		err = s.startPlayback(s.cfg.Output.WorkingFile())
	case media.StatePlaying:
		s.player.Pause()
	default:
		slog.Debug("Play ignored", "state", state)
	}

	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start playback: %v", err))
	}
	return err
}

// startPlayback plays from the start when the waveform rests at its end,
// otherwise from the centred sample
func (s *Session) startPlayback(target string) error {
	samples := s.store.Snapshot()
	if len(samples) == 0 {
		slog.Debug("Nothing recorded to play")
		return nil
	}
	last := samples[len(samples)-1].TimeMs
	if last == 0 {
		slog.Debug("Take too short to play", "samples", len(samples))
		return nil
	}
	centred := s.centredMs(samples)

	s.player.SetDuration(msDuration(last))
	if s.scrub.Offset() == 0 || centred >= last {
		s.scrub.JumpToEnd(len(samples))
		return s.player.Play(target)
	}
	s.player.SeekTo(msDuration(centred))
	return s.player.Resume(target)
}

// DragStart pauses output while the user scrubs a running playback
func (s *Session) DragStart() {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	if s.machine.State() == media.StatePlaying {
		s.player.PauseForScrub()
	}
}

// Drag moves the waveform by dx pixels and returns the new offset
func (s *Session) Drag(dx float64) float64 {
	s.actMu.Lock()
	offset := s.scrub.Drag(dx, s.store.Len(), s.machine.State())
	s.actMu.Unlock()

	s.publish()
	return offset
}

// DragEnd seeks a running playback to the sample under the centre-line
func (s *Session) DragEnd() {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	if s.machine.State() != media.StatePlaying {
		return
	}
	pos := s.centredMs(s.store.Snapshot())
	slog.Debug("Scrub released", "session", s.SessionID(), "position_ms", pos)
	s.player.SeekWhileRunning(msDuration(pos))
}

// centredMs is the time under the centre-line, or the last shown time when
// no bar has reached it.
func (s *Session) centredMs(samples []waveform.Sample) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.scrub.Centered(samples); ok {
		s.timerMs = c.TimeMs
	}
	return s.timerMs
}

func (s *Session) onElapsed(elapsed time.Duration) {
	s.scrub.Advance(s.store.Len(), s.player.Duration(), s.cfg.Timing.TickInterval())
	s.publish()
}

// SessionID is the id of the current take, empty before the first one
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) State() media.State {
	return s.machine.State()
}

// Subscribe calls fn with a fresh snapshot on every change. The returned
// function removes the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) publish() {
	s.subMu.Lock()
	if len(s.subs) == 0 {
		s.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// GetConfig returns the current configuration
func (s *Session) GetConfig() *config.Config {
	return s.cfg
}

// GetFileInfo returns details about the working file
func (s *Session) GetFileInfo() (*FileInfo, error) {
	path := s.cfg.Output.WorkingFile()
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("no recording at %s: %w", path, err)
	}

	info := &FileInfo{
		Path:         path,
		Size:         st.Size(),
		SizeHuman:    formatBytes(st.Size()),
		ModTime:      st.ModTime(),
		ModTimeHuman: st.ModTime().Format("2006-01-02 15:04:05"),
	}
	if d, err := play.ReadDuration(path); err == nil {
		info.DurationMs = uint64(d.Milliseconds())
	} else {
		slog.Debug("Could not read working file duration", "file", path, "error", err)
	}
	return info, nil
}

// Close stops both controllers and drops every subscriber
func (s *Session) Close() error {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	s.recorder.Stop()
	s.player.Stop()
	s.unwatch()

	s.subMu.Lock()
	s.subs = make(map[int]func(Snapshot))
	s.subMu.Unlock()

	slog.Debug("Session closed", "session", s.SessionID())
	return nil
}

// GetLastError returns the last error message
func (s *Session) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message
func (s *Session) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message
func (s *Session) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

func msDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
