package service

import (
	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/play"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

// Bar is one rendered waveform bar. Label is set on axis ticks only.
type Bar struct {
	TimeMs uint64  `json:"time_ms"`
	X      float64 `json:"x"`
	Height int     `json:"height"`
	Label  string  `json:"label,omitempty"`
}

// Snapshot is everything a renderer needs for one frame
type Snapshot struct {
	SessionID  string            `json:"session_id"`
	State      media.State       `json:"state"`
	Samples    []waveform.Sample `json:"samples"`
	Bars       []Bar             `json:"bars"`
	Cursor     play.Cursor       `json:"cursor"`
	Offset     float64           `json:"offset"`
	TotalWidth float64           `json:"total_width"`
	CenteredMs uint64            `json:"centered_ms"`
	Timer      string            `json:"timer"`
	LastError  string            `json:"last_error,omitempty"`
}

// Snapshot copies the current read model
func (s *Session) Snapshot() Snapshot {
	samples := s.store.Snapshot()
	centred := s.centredMs(samples)
	n := len(samples)

	bars := make([]Bar, n)
	for i, sample := range samples {
		bars[i] = Bar{
			TimeMs: sample.TimeMs,
			X:      s.scrub.BarX(i, n),
			Height: s.scale.Height(sample.Amplitude),
		}
		if waveform.IsAxisTick(i, sample) {
			bars[i].Label = waveform.AxisLabel(sample.TimeMs)
		}
	}

	return Snapshot{
		SessionID:  s.SessionID(),
		State:      s.machine.State(),
		Samples:    samples,
		Bars:       bars,
		Cursor:     s.player.Cursor(),
		Offset:     s.scrub.Offset(),
		TotalWidth: s.scrub.Geometry().TotalWidth(n),
		CenteredMs: centred,
		Timer:      waveform.TimerLabel(centred),
		LastError:  s.GetLastError(),
	}
}
