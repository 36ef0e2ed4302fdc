package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/tapedeck/internal/config"
	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/ticker/tickertest"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

type fakeCapture struct {
	mu         sync.Mutex
	prepareErr error
	startErr   error
	target     string
	maxDur     time.Duration
	stopped    int
	released   int
	peak       uint32
}

func (f *fakeCapture) Prepare(target string, maxDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = target
	f.maxDur = maxDuration
	return f.prepareErr
}

func (f *fakeCapture) Start() error { return f.startErr }

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeCapture) PeakAmplitude() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peak += 10
	return f.peak
}

func (f *fakeCapture) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []media.Event
}

func (l *eventLog) MediaEvent(ev media.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []media.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]media.Event(nil), l.events...)
}

var testTiming = config.TimingConfig{MaxDurationMs: 20000, TickIntervalMs: 100}

func newTestRecorder(dev *fakeCapture) (*Recorder, *tickertest.Clock, *eventLog) {
	clock := tickertest.NewClock()
	events := &eventLog{}
	factory := CaptureFactoryFunc(func() (CaptureDevice, error) { return dev, nil })
	rec := NewRecorder(testTiming, factory, waveform.NewStore(),
		WithRecorderClock(clock), WithRecorderListener(events))
	return rec, clock, events
}

func TestElapsedMs(t *testing.T) {
	max := 20 * time.Second
	tick := 100 * time.Millisecond

	tests := []struct {
		remainingMs int64
		expected    uint64
	}{
		{20000, 0},
		{19950, 0},
		{19900, 100},
		{19001, 999},
		{19000, 1000},
		{18905, 1000},
		{18800, 1200},
		{17900, 2100},
		{99, 20000},
		{0, 20000},
	}

	for _, tt := range tests {
		got := ElapsedMs(max, time.Duration(tt.remainingMs)*time.Millisecond, tick)
		assert.Equal(t, tt.expected, got, "remaining %dms", tt.remainingMs)
	}
}

func TestRecorder_SamplesEveryTickUntilStopped(t *testing.T) {
	dev := &fakeCapture{}
	rec, clock, events := newTestRecorder(dev)

	require.NoError(t, rec.Start("/tmp/take.wav"))
	assert.True(t, rec.Recording())
	assert.Equal(t, 20*time.Second, dev.maxDur)

	clock.Advance(2500 * time.Millisecond)
	rec.Stop()

	samples := rec.Store().Snapshot()
	require.Len(t, samples, 26)
	assert.Equal(t, uint64(0), samples[0].TimeMs)
	assert.Equal(t, uint64(2500), samples[25].TimeMs)
	for i := 1; i < len(samples); i++ {
		assert.LessOrEqual(t, samples[i-1].TimeMs, samples[i].TimeMs)
	}

	assert.False(t, rec.Recording())
	assert.Equal(t, 1, dev.released)
	assert.Equal(t, []media.Event{media.EventRecord, media.EventStopRecording}, events.all())
}

func TestRecorder_NoSamplesAfterStop(t *testing.T) {
	dev := &fakeCapture{}
	rec, clock, _ := newTestRecorder(dev)

	require.NoError(t, rec.Start("/tmp/take.wav"))
	clock.Advance(300 * time.Millisecond)
	rec.Stop()
	n := rec.Store().Len()

	clock.Advance(5 * time.Second)
	assert.Equal(t, n, rec.Store().Len())
}

func TestRecorder_StopsItselfAtMaxDuration(t *testing.T) {
	dev := &fakeCapture{}
	rec, clock, events := newTestRecorder(dev)

	require.NoError(t, rec.Start("/tmp/take.wav"))
	clock.Advance(21 * time.Second)

	require.Eventually(t, func() bool { return !rec.Recording() }, time.Second, time.Millisecond)

	last, ok := rec.Store().Last()
	require.True(t, ok)
	assert.Equal(t, uint64(19900), last.TimeMs)
	assert.Equal(t, 200, rec.Store().Len())
	assert.Eventually(t, func() bool { return len(events.all()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, media.EventStopRecording, events.all()[1])
}

func TestRecorder_RepeatedStop(t *testing.T) {
	dev := &fakeCapture{}
	clock := tickertest.NewClock()
	machine := media.NewMachine()
	rec := NewRecorder(testTiming, CaptureFactoryFunc(func() (CaptureDevice, error) { return dev, nil }),
		waveform.NewStore(), WithRecorderClock(clock), WithRecorderListener(machine))

	require.NoError(t, rec.Start("/tmp/take.wav"))
	rec.Stop()
	rec.Stop()

	assert.Equal(t, media.StateStoppedRecording, machine.State())
	assert.Equal(t, 1, dev.released)
}

func TestRecorder_DeviceUnavailable(t *testing.T) {
	events := &eventLog{}
	factory := CaptureFactoryFunc(func() (CaptureDevice, error) { return nil, errors.New("no microphone") })
	rec := NewRecorder(testTiming, factory, waveform.NewStore(), WithRecorderListener(events))

	err := rec.Start("/tmp/take.wav")
	require.ErrorIs(t, err, media.ErrDeviceUnavailable)
	assert.False(t, rec.Recording())
	assert.Empty(t, events.all())
}

func TestRecorder_PrepareFailedReleasesDevice(t *testing.T) {
	dev := &fakeCapture{prepareErr: errors.New("bad format")}
	rec, _, events := newTestRecorder(dev)

	err := rec.Start("/tmp/take.wav")
	require.ErrorIs(t, err, media.ErrPrepareFailed)
	assert.Equal(t, 1, dev.released)
	assert.False(t, rec.Recording())
	assert.Empty(t, events.all())
}

func TestRecorder_PrepareFailureKeepsCause(t *testing.T) {
	cause := fmt.Errorf("open sink: %w", media.ErrDeviceUnavailable)
	dev := &fakeCapture{prepareErr: cause}
	rec, _, _ := newTestRecorder(dev)

	err := rec.Start("/tmp/take.wav")
	require.ErrorIs(t, err, media.ErrPrepareFailed)
	assert.ErrorIs(t, err, media.ErrDeviceUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestRecorder_StartWhileRecording(t *testing.T) {
	dev := &fakeCapture{}
	rec, _, _ := newTestRecorder(dev)

	require.NoError(t, rec.Start("/tmp/take.wav"))
	assert.Error(t, rec.Start("/tmp/take.wav"))
	rec.Stop()
}

func TestRecorder_SampleCallback(t *testing.T) {
	dev := &fakeCapture{}
	clock := tickertest.NewClock()

	var mu sync.Mutex
	var seen []waveform.Sample
	rec := NewRecorder(testTiming, CaptureFactoryFunc(func() (CaptureDevice, error) { return dev, nil }),
		waveform.NewStore(), WithRecorderClock(clock),
		WithSampleCallback(func(s waveform.Sample) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		}))

	require.NoError(t, rec.Start("/tmp/take.wav"))
	clock.Advance(200 * time.Millisecond)
	rec.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, uint64(200), seen[2].TimeMs)
	assert.Equal(t, uint32(30), seen[2].Amplitude)
}

func TestWavCapture_WritesDecodableFileUpToCap(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "take.wav")
	capture := NewWavCapture(NewToneSource(8000, 440, false))

	require.NoError(t, capture.Prepare(target, 500*time.Millisecond))
	require.NoError(t, capture.Start())
	require.Eventually(t, func() bool { return capture.peak.Load() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Release())

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(8000), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)

	dur, err := dec.Duration()
	require.NoError(t, err)
	assert.Greater(t, dur, time.Duration(0))
	assert.LessOrEqual(t, dur, 500*time.Millisecond)
}

func TestWavCapture_StartRequiresPrepare(t *testing.T) {
	capture := NewWavCapture(NewToneSource(8000, 440, false))
	assert.Error(t, capture.Start())
	assert.NoError(t, capture.Release())
	assert.Error(t, capture.Prepare(filepath.Join(t.TempDir(), "x.wav"), time.Second))
}

func TestDetermineBackend(t *testing.T) {
	cfg := config.Default()

	cfg.Audio.Backend = "tone"
	assert.Equal(t, BackendTypeTone, determineBackend(cfg))

	cfg.Audio.Backend = "PortAudio"
	assert.Equal(t, BackendTypePortAudio, determineBackend(cfg))

	cfg.Audio.Backend = "auto"
	if portaudioAvailable {
		assert.Equal(t, BackendTypePortAudio, determineBackend(cfg))
	} else {
		assert.Equal(t, BackendTypeTone, determineBackend(cfg))
	}

	assert.Contains(t, GetAvailableBackends(), BackendTypeTone)
}
