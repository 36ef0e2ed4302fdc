//go:build !portaudio

package play

import "errors"

const portaudioOutput = false

func openPortAudio(path string) (Device, error) {
	return nil, errors.New("built without portaudio support")
}
