package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/audiolibrelab/tapedeck/internal/config"
	"github.com/audiolibrelab/tapedeck/internal/media"
)

// BackendType represents the type of capture backend
type BackendType string

const (
	BackendTypeTone      BackendType = "tone"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// NewCaptureFactory returns a factory for the backend selected by configuration
func NewCaptureFactory(cfg *config.Config) CaptureFactory {
	backendType := determineBackend(cfg)
	rate := cfg.Audio.SampleRate
	hz := cfg.Audio.ToneHz

	slog.Debug("Capture backend selected", "backend", backendType, "sample_rate", rate)

	switch backendType {
	case BackendTypePortAudio:
		return CaptureFactoryFunc(func() (CaptureDevice, error) {
			src, err := newMicSource(rate)
			if err != nil {
				return nil, err
			}
			return NewWavCapture(src), nil
		})
	default:
		return CaptureFactoryFunc(func() (CaptureDevice, error) {
			return NewWavCapture(NewToneSource(rate, hz, true)), nil
		})
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "tone":
		return BackendTypeTone
	case "portaudio":
		return BackendTypePortAudio
	}

	// auto: prefer a real microphone when the build has one
	if portaudioAvailable {
		return BackendTypePortAudio
	}
	return BackendTypeTone
}

// GetAvailableBackends returns list of available backends in this build
func GetAvailableBackends() []BackendType {
	backends := []BackendType{BackendTypeTone}
	if portaudioAvailable {
		backends = append(backends, BackendTypePortAudio)
	}
	return backends
}

func deviceUnavailable(err error) error {
	return fmt.Errorf("%w: %w", media.ErrDeviceUnavailable, err)
}
