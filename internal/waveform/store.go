// Package waveform holds the time-ordered amplitude samples of the working
// recording and the helpers a renderer needs to draw them.
package waveform

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfOrder is returned when a sample would move time backwards
var ErrOutOfOrder = errors.New("sample time precedes the last sample")

// Sample is one (time, amplitude) observation of recorded audio
type Sample struct {
	TimeMs    uint64 `json:"time_ms"`
	Amplitude uint32 `json:"amplitude"`
}

// Store is an append-only, time-ordered sample sequence safe for concurrent use
type Store struct {
	mu      sync.RWMutex
	samples []Sample
}

func NewStore() *Store {
	return &Store{}
}

// Append adds s at the end. Equal timestamps are kept; a timestamp lower than
// the last one is rejected.
func (s *Store) Append(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.samples); n > 0 && sample.TimeMs < s.samples[n-1].TimeMs {
		return fmt.Errorf("append at %dms after %dms: %w", sample.TimeMs, s.samples[n-1].TimeMs, ErrOutOfOrder)
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Last returns the most recent sample
func (s *Store) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// DurationMs is the time of the last sample, or 0 when empty
func (s *Store) DurationMs() uint64 {
	last, _ := s.Last()
	return last.TimeMs
}

// Snapshot returns a copy of every sample
func (s *Store) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Slice returns a copy of samples[from:to], with bounds clamped to the store
func (s *Store) Slice(from, to int) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from = max(from, 0)
	to = min(to, len(s.samples))
	if from >= to {
		return nil
	}
	out := make([]Sample, to-from)
	copy(out, s.samples[from:to])
	return out
}

// Reset drops every sample
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
}
