package waveform

import "fmt"

// TimerLabel formats a cursor time as "mm:ss.ss". Minutes are zero padded to
// two digits; recordings past an hour keep counting minutes.
func TimerLabel(ms uint64) string {
	minutes := ms / 60000
	seconds := float64(ms%60000) / 1000.0
	return fmt.Sprintf("%02d:%05.2f", minutes, seconds)
}

// AxisLabel formats a time-axis tick as "mm:ss", truncating to the second
func AxisLabel(ms uint64) string {
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// IsAxisTick reports whether the sample at index i carries a time-axis label:
// the first sample and every sample on a whole second.
func IsAxisTick(i int, s Sample) bool {
	return i == 0 || s.TimeMs%1000 == 0
}

// BarScale maps raw peak amplitudes to bar heights
type BarScale struct {
	MaxReportable uint32
	MaxHeight     int
	MinHeight     int
}

// Height returns the bar height for amplitude: proportional to the amplitude
// up to MaxReportable, never below MinHeight.
func (b BarScale) Height(amplitude uint32) int {
	if b.MaxReportable == 0 || amplitude >= b.MaxReportable {
		return b.MaxHeight
	}
	percent := int(uint64(amplitude) * 100 / uint64(b.MaxReportable))
	h := b.MaxHeight * percent / 100
	if h < b.MinHeight {
		return b.MinHeight
	}
	return h
}
