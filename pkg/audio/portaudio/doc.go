// Package portaudio plays PCM audio on the default output device through the
// PortAudio C library.
//
// The cgo binding is only compiled with the "portaudio" build tag and needs
// portaudio-2.0 available through pkg-config (brew install portaudio,
// apt install portaudio19-dev). Without the tag every Open call fails with
// ErrNotBuilt so the rest of the program still builds and runs headless.
//
//	go build -tags portaudio ./cmd/explainer
package portaudio

import (
	"errors"
	"time"
)

// ErrNotBuilt is returned when the binary was built without PortAudio.
var ErrNotBuilt = errors.New("portaudio: not compiled in (build with -tags portaudio)")

// DefaultBuffer is the write granularity used when Device.Buffer is zero.
const DefaultBuffer = 20 * time.Millisecond

// Device opens output streams on the system default output device. It
// satisfies playback.Device.
type Device struct {
	// Buffer is the duration of one PortAudio write.
	Buffer time.Duration
}

func (d *Device) buffer() time.Duration {
	if d == nil || d.Buffer <= 0 {
		return DefaultBuffer
	}
	return d.Buffer
}
