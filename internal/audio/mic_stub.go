//go:build !portaudio

package audio

import "errors"

const portaudioAvailable = false

func newMicSource(rate int) (Source, error) {
	return nil, deviceUnavailable(errors.New("built without portaudio support"))
}
