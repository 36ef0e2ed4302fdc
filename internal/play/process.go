package play

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/tapedeck/internal/ticker"
)

// audioPlayers lists the external players able to start at an offset, in
// order of preference
var audioPlayers = []string{"ffplay", "mpv", "cvlc"}

// ProcessDevice plays through an external audio player. The player cannot be
// paused from outside, so Pause ends the process and Start launches a new one
// at the playhead.
type ProcessDevice struct {
	player   string
	path     string
	duration time.Duration
	head     *Playhead
	command  func(name string, args ...string) *exec.Cmd

	mu       sync.Mutex
	proc     *exec.Cmd
	exited   chan struct{}
	released bool
}

// OpenProcess prepares path for playback through player
func OpenProcess(path, player string, clock ticker.Clock) (*ProcessDevice, error) {
	duration, err := ReadDuration(path)
	if err != nil {
		return nil, err
	}
	return &ProcessDevice{
		player:   player,
		path:     path,
		duration: duration,
		head:     NewPlayhead(clock, duration),
		command:  exec.Command,
	}, nil
}

func findAudioPlayer() (string, error) {
	for _, player := range audioPlayers {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(audioPlayers, ", "))
}

// playerArgs builds the command line starting path at pos
func playerArgs(player, path string, pos time.Duration) []string {
	sec := strconv.FormatFloat(pos.Seconds(), 'f', 3, 64)
	switch player {
	case "mpv":
		return []string{"--no-video", "--really-quiet", "--start=" + sec, path}
	case "cvlc":
		return []string{"--play-and-exit", "--quiet", "--start-time=" + sec, path}
	default:
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-ss", sec, path}
	}
}

func (d *ProcessDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return errors.New("playback device released")
	}
	if d.aliveLocked() {
		return nil
	}
	d.killLocked()
	if err := d.launchLocked(d.head.Position()); err != nil {
		return err
	}
	d.head.Run()
	return nil
}

func (d *ProcessDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killLocked()
	d.head.Hold()
	return nil
}

// Seek moves the playhead, relaunching the player when it is running
func (d *ProcessDevice) Seek(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.head.MoveTo(pos)
	if !d.aliveLocked() {
		return nil
	}
	d.killLocked()
	return d.launchLocked(d.head.Position())
}

func (d *ProcessDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killLocked()
	d.head.Reset()
	return nil
}

func (d *ProcessDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killLocked()
	d.head.Hold()
	d.released = true
	return nil
}

func (d *ProcessDevice) Duration() time.Duration { return d.duration }

func (d *ProcessDevice) Position() time.Duration { return d.head.Position() }

// Running reports whether a player process is alive
func (d *ProcessDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aliveLocked()
}

func (d *ProcessDevice) aliveLocked() bool {
	if d.proc == nil {
		return false
	}
	select {
	case <-d.exited:
		return false
	default:
		return true
	}
}

func (d *ProcessDevice) launchLocked(pos time.Duration) error {
	if pos >= d.duration {
		return nil
	}
	cmd := d.command(d.player, playerArgs(d.player, d.path, pos)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", d.player, err)
	}
	slog.Debug("Audio player started", "player", d.player, "file", d.path, "position", pos)

	exited := make(chan struct{})
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("Audio player exited", "player", d.player, "error", err)
		}
		close(exited)
	}()
	d.proc = cmd
	d.exited = exited
	return nil
}

func (d *ProcessDevice) killLocked() {
	if d.proc == nil {
		return
	}
	select {
	case <-d.exited:
	default:
		if err := d.proc.Process.Kill(); err != nil {
			slog.Warn("Failed to stop audio player", "player", d.player, "error", err)
		}
		<-d.exited
	}
	d.proc = nil
	d.exited = nil
}
