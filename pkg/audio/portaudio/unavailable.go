//go:build !portaudio

package portaudio

import (
	"github.com/haivivi/explainer/pkg/audio/pcm"
)

// DeviceInfo describes an output device.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultOutput   bool
}

// Open always fails with ErrNotBuilt.
func (d *Device) Open(format pcm.Format) (pcm.WriteCloser, error) {
	return nil, ErrNotBuilt
}

// Devices always fails with ErrNotBuilt.
func Devices() ([]DeviceInfo, error) {
	return nil, ErrNotBuilt
}

// Initialize always fails with ErrNotBuilt.
func Initialize() error {
	return ErrNotBuilt
}

// Terminate does nothing.
func Terminate() error {
	return nil
}
