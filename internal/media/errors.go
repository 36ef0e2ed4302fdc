package media

import "errors"

var (
	// ErrDeviceUnavailable means a capture or playback device could not be acquired
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrPrepareFailed means the device was acquired but rejected its configuration
	ErrPrepareFailed = errors.New("audio device prepare failed")
	// ErrInvalidDuration means playback was requested before a positive duration was set
	ErrInvalidDuration = errors.New("playback duration must be positive")
)
