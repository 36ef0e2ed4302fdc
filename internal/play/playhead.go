package play

import (
	"sync"
	"time"

	"github.com/audiolibrelab/tapedeck/internal/ticker"
)

// Playhead follows a playback position against a clock. It never moves past
// limit.
type Playhead struct {
	clock ticker.Clock
	limit time.Duration

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	offset    time.Duration
}

func NewPlayhead(clock ticker.Clock, limit time.Duration) *Playhead {
	if clock == nil {
		clock = ticker.RealClock{}
	}
	return &Playhead{clock: clock, limit: limit}
}

// Run starts moving; it is a no-op while already running
func (h *Playhead) Run() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		h.running = true
		h.startedAt = h.clock.Now()
	}
}

// Hold stops moving and returns where it stopped
func (h *Playhead) Hold() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offset = h.positionLocked()
	h.running = false
	return h.offset
}

func (h *Playhead) MoveTo(pos time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offset = min(max(pos, 0), h.limit)
	h.startedAt = h.clock.Now()
}

// Reset stops at zero
func (h *Playhead) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.offset = 0
}

func (h *Playhead) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Playhead) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

func (h *Playhead) positionLocked() time.Duration {
	pos := h.offset
	if h.running {
		pos += h.clock.Now().Sub(h.startedAt)
	}
	return min(pos, h.limit)
}
