package audio

import "time"

// CaptureDevice is the microphone-side collaborator of the Recorder. The
// output-duration cap is fixed at Prepare time.
type CaptureDevice interface {
	Prepare(target string, maxDuration time.Duration) error
	Start() error
	Stop() error
	// PeakAmplitude returns the largest absolute sample seen since the previous call
	PeakAmplitude() uint32
	Release() error
}

// CaptureFactory acquires a fresh CaptureDevice for each recording
type CaptureFactory interface {
	NewCaptureDevice() (CaptureDevice, error)
}

// CaptureFactoryFunc adapts a function to CaptureFactory
type CaptureFactoryFunc func() (CaptureDevice, error)

func (f CaptureFactoryFunc) NewCaptureDevice() (CaptureDevice, error) { return f() }
