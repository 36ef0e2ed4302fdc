package audio

import (
	"math"
	"time"
)

// Source produces mono 16-bit PCM for a capture device
type Source interface {
	SampleRate() int
	Open() error
	// Read fills dst with frames, blocking until they are available
	Read(dst []int16) (int, error)
	Close() error
}

// ToneSource synthesises a sine whose loudness swells and fades once per
// second, so the waveform has visible shape. When Realtime is set, Read paces
// itself to the sample rate like a live input.
type ToneSource struct {
	Rate     int
	Hz       float64
	Realtime bool

	pos  int
	last time.Time
}

func NewToneSource(rate int, hz float64, realtime bool) *ToneSource {
	return &ToneSource{Rate: rate, Hz: hz, Realtime: realtime}
}

func (t *ToneSource) SampleRate() int { return t.Rate }

func (t *ToneSource) Open() error {
	t.pos = 0
	t.last = time.Now()
	return nil
}

func (t *ToneSource) Read(dst []int16) (int, error) {
	if t.Realtime {
		due := t.last.Add(time.Duration(len(dst)) * time.Second / time.Duration(t.Rate))
		if wait := time.Until(due); wait > 0 {
			time.Sleep(wait)
		}
		t.last = due
	}

	for i := range dst {
		sec := float64(t.pos) / float64(t.Rate)
		envelope := 0.15 + 0.85*math.Abs(math.Sin(math.Pi*sec))
		dst[i] = int16(envelope * 0.9 * math.MaxInt16 * math.Sin(2*math.Pi*t.Hz*sec))
		t.pos++
	}
	return len(dst), nil
}

func (t *ToneSource) Close() error { return nil }
