//go:build portaudio

package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const portaudioAvailable = true

// micSource reads the default input device through PortAudio's blocking API
type micSource struct {
	rate   int
	buf    []int16
	stream *portaudio.Stream
}

func newMicSource(rate int) (Source, error) {
	return &micSource{rate: rate}, nil
}

func (m *micSource) SampleRate() int { return m.rate }

func (m *micSource) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return deviceUnavailable(err)
	}

	m.buf = make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.rate), len(m.buf), m.buf)
	if err != nil {
		portaudio.Terminate()
		return deviceUnavailable(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	m.stream = stream
	return nil
}

func (m *micSource) Read(dst []int16) (int, error) {
	if m.stream == nil {
		return 0, fmt.Errorf("input stream not open")
	}
	if err := m.stream.Read(); err != nil {
		return 0, err
	}
	return copy(dst, m.buf), nil
}

func (m *micSource) Close() error {
	if m.stream == nil {
		return nil
	}
	m.stream.Stop()
	err := m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	return err
}
