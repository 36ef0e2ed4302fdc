package play

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/tapedeck/internal/ticker"
)

// OutputType selects how playback reaches the speakers
type OutputType string

const (
	OutputPortAudio OutputType = "portaudio"
	OutputExternal  OutputType = "external"
	OutputSilent    OutputType = "silent"
	OutputAuto      OutputType = "auto"
)

// NewFactory returns a Factory for the configured output. Auto prefers
// PortAudio for WAV files, then an external player, then the silent device.
func NewFactory(output string, clock ticker.Clock) Factory {
	kind := OutputType(strings.ToLower(output))
	return FactoryFunc(func(source string) (Device, error) {
		switch kind {
		case OutputPortAudio:
			return openPortAudio(source)
		case OutputExternal:
			player, err := findAudioPlayer()
			if err != nil {
				return nil, err
			}
			return openProcess(source, player, clock)
		case OutputSilent:
			return openSilent(source, clock)
		}

		if portaudioOutput && strings.EqualFold(filepath.Ext(source), ".wav") {
			dev, err := openPortAudio(source)
			if err == nil {
				return dev, nil
			}
			slog.Debug("PortAudio output unavailable", "error", err)
		}
		if player, err := findAudioPlayer(); err == nil {
			return openProcess(source, player, clock)
		}
		slog.Debug("No audio output available, playing silently", "file", source)
		return openSilent(source, clock)
	})
}

func openProcess(source, player string, clock ticker.Clock) (Device, error) {
	dev, err := OpenProcess(source, player, clock)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func openSilent(source string, clock ticker.Clock) (Device, error) {
	dev, err := OpenFile(source, clock)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// GetAvailableOutputs returns the outputs usable on this system
func GetAvailableOutputs() []OutputType {
	outputs := []OutputType{OutputSilent}
	if portaudioOutput {
		outputs = append(outputs, OutputPortAudio)
	}
	if _, err := findAudioPlayer(); err == nil {
		outputs = append(outputs, OutputExternal)
	}
	return outputs
}
