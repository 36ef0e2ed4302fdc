// Package scrub maps horizontal drag offsets over the waveform to time positions.
//
// The offset is how far the waveform has been dragged right from its resting
// place, where the newest bar sits just left of the viewport centre-line. An
// offset of zero shows the end of the take; the total waveform width shows its
// start.
package scrub

import (
	"sync"
	"time"

	"github.com/audiolibrelab/tapedeck/internal/media"
	"github.com/audiolibrelab/tapedeck/internal/waveform"
)

// Geometry is the renderer's bar layout in pixels
type Geometry struct {
	BarWidth      float64
	BarSpacing    float64
	ViewportWidth float64
}

func (g Geometry) step() float64 { return g.BarWidth + g.BarSpacing }

// TotalWidth is the drawn width of n bars plus one trailing slot
func (g Geometry) TotalWidth(n int) float64 {
	return float64(n)*g.step() + g.step()
}

// Translator owns the drag offset
type Translator struct {
	geo Geometry

	mu     sync.Mutex
	offset float64
}

func NewTranslator(geo Geometry) *Translator {
	return &Translator{geo: geo}
}

func (t *Translator) Geometry() Geometry { return t.geo }

func (t *Translator) Offset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Drag moves the offset by dx for a waveform of n bars and returns the new
// offset. Input is ignored while recording.
func (t *Translator) Drag(dx float64, n int, state media.State) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state == media.StateRecording {
		return t.offset
	}
	t.offset = clamp(t.offset+dx, 0, t.geo.TotalWidth(n))
	return t.offset
}

// BarX is the left edge of bar i out of n at the current offset
func (t *Translator) BarX(i, n int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.barX(t.offset, i, n)
}

func (t *Translator) barX(offset float64, i, n int) float64 {
	return offset + t.geo.ViewportWidth/2 - float64(n-i)*t.geo.step()
}

// Centered returns the latest sample whose bar has reached the centre-line
// band. It reports false when every bar is still right of the band.
func (t *Translator) Centered(samples []waveform.Sample) (waveform.Sample, bool) {
	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	limit := t.geo.ViewportWidth/2 + t.geo.BarWidth/2
	n := len(samples)

	var best waveform.Sample
	found := false
	for i, s := range samples {
		if t.barX(offset, i, n) > limit {
			continue
		}
		if !found || s.TimeMs >= best.TimeMs {
			best = s
			found = true
		}
	}
	return best, found
}

// Advance scrolls the waveform toward the centre-line by one tick of
// playback. A resting offset stays at zero.
func (t *Translator) Advance(n int, duration, tick time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.offset == 0 || n == 0 || duration <= 0 {
		return
	}
	step := t.geo.TotalWidth(n) / float64(duration.Milliseconds()) * float64(tick.Milliseconds())
	t.offset = max(t.offset-step, 0)
}

func (t *Translator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset = 0
}

// JumpToEnd drags the waveform fully right so playback starts at the first bar
func (t *Translator) JumpToEnd(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset = t.geo.TotalWidth(n)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
