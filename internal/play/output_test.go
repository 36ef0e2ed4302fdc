package play

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/tapedeck/internal/ticker/tickertest"
)

func TestPlayhead(t *testing.T) {
	clock := tickertest.NewClock()
	head := NewPlayhead(clock, time.Second)

	head.Run()
	clock.Advance(300 * time.Millisecond)
	assert.True(t, head.Running())
	assert.Equal(t, 300*time.Millisecond, head.Position())

	assert.Equal(t, 300*time.Millisecond, head.Hold())
	clock.Advance(time.Second)
	assert.Equal(t, 300*time.Millisecond, head.Position())

	head.MoveTo(-time.Second)
	assert.Equal(t, time.Duration(0), head.Position())
	head.MoveTo(5 * time.Second)
	assert.Equal(t, time.Second, head.Position())

	head.MoveTo(900 * time.Millisecond)
	head.Run()
	clock.Advance(time.Second)
	assert.Equal(t, time.Second, head.Position())

	head.Reset()
	assert.False(t, head.Running())
	assert.Equal(t, time.Duration(0), head.Position())
}

func TestPlayerArgs(t *testing.T) {
	tests := []struct {
		player   string
		expected []string
	}{
		{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-ss", "1.250", "take.wav"}},
		{"mpv", []string{"--no-video", "--really-quiet", "--start=1.250", "take.wav"}},
		{"cvlc", []string{"--play-and-exit", "--quiet", "--start-time=1.250", "take.wav"}},
	}

	for _, tt := range tests {
		t.Run(tt.player, func(t *testing.T) {
			assert.Equal(t, tt.expected, playerArgs(tt.player, "take.wav", 1250*time.Millisecond))
		})
	}
}

func TestProcessDevice_Lifecycle(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	path := writeWav(t, 8000, 8000)
	clock := tickertest.NewClock()

	dev, err := OpenProcess(path, "ffplay", clock)
	require.NoError(t, err)

	var launches [][]string
	dev.command = func(name string, args ...string) *exec.Cmd {
		launches = append(launches, append([]string{name}, args...))
		return exec.Command("sleep", "30")
	}

	require.NoError(t, dev.Start())
	assert.True(t, dev.Running())
	require.NoError(t, dev.Start())
	assert.Len(t, launches, 1)

	clock.Advance(300 * time.Millisecond)
	require.NoError(t, dev.Pause())
	assert.False(t, dev.Running())
	assert.Equal(t, 300*time.Millisecond, dev.Position())

	require.NoError(t, dev.Seek(600*time.Millisecond))
	assert.False(t, dev.Running())
	require.NoError(t, dev.Start())
	require.Len(t, launches, 2)
	assert.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-ss", "0.600", path}, launches[1])

	require.NoError(t, dev.Seek(200*time.Millisecond))
	assert.True(t, dev.Running())
	assert.Len(t, launches, 3)

	require.NoError(t, dev.Stop())
	assert.False(t, dev.Running())
	assert.Equal(t, time.Duration(0), dev.Position())

	require.NoError(t, dev.Release())
	assert.Error(t, dev.Start())
}

func TestProcessDevice_NoLaunchAtEnd(t *testing.T) {
	path := writeWav(t, 8000, 4000)
	dev, err := OpenProcess(path, "ffplay", tickertest.NewClock())
	require.NoError(t, err)

	launched := false
	dev.command = func(name string, args ...string) *exec.Cmd {
		launched = true
		return exec.Command(name, args...)
	}

	require.NoError(t, dev.Seek(dev.Duration()))
	require.NoError(t, dev.Start())
	assert.False(t, launched)
	assert.False(t, dev.Running())
	assert.Equal(t, dev.Duration(), dev.Position())
}

func TestDecodeWav(t *testing.T) {
	path := writeWav(t, 8000, 4000)

	clip, err := decodeWav(path)
	require.NoError(t, err)
	assert.Equal(t, 1, clip.channels)
	assert.Equal(t, 8000, clip.rate)
	assert.Equal(t, 4000, clip.frames())
	assert.Equal(t, 500*time.Millisecond, clip.duration())
	assert.Equal(t, int16(500), clip.samples[5])

	assert.Equal(t, 2000, clip.frameAt(250*time.Millisecond))
	assert.Equal(t, 0, clip.frameAt(-time.Second))
	assert.Equal(t, 4000, clip.frameAt(time.Second))
	assert.Equal(t, 250*time.Millisecond, clip.positionOf(2000))

	buf := []int16{9, 9, 9, 9, 9, 9, 9, 9}
	assert.Equal(t, 4, clip.fill(buf, 3996))
	assert.Equal(t, []int16{19600, 19700, 19800, 19900, 0, 0, 0, 0}, buf)
	assert.Equal(t, 0, clip.fill(buf, 4000))
	assert.Equal(t, make([]int16, 8), buf)

	_, err = decodeWav(filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorContains(t, err, "audio file not found")
}

func TestToInt16(t *testing.T) {
	assert.Equal(t, int16(32512), toInt16(255, 8))
	assert.Equal(t, int16(-32768), toInt16(0, 8))
	assert.Equal(t, int16(-300), toInt16(-300, 16))
	assert.Equal(t, int16(32767), toInt16(1<<23-1, 24))
	assert.Equal(t, int16(-32768), toInt16(-1<<31, 32))
}

func TestNewFactory(t *testing.T) {
	path := writeWav(t, 8000, 4000)
	clock := tickertest.NewClock()

	for _, output := range []string{"silent", "SILENT"} {
		dev, err := NewFactory(output, clock).Create(path)
		require.NoError(t, err)
		assert.IsType(t, &FileDevice{}, dev)
		require.NoError(t, dev.Release())
	}

	dev, err := NewFactory("auto", clock).Create(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, dev.Duration())
	require.NoError(t, dev.Release())

	if !portaudioOutput {
		_, err := NewFactory("portaudio", clock).Create(path)
		assert.Error(t, err)
	}

	assert.Contains(t, GetAvailableOutputs(), OutputSilent)
}
