//go:build !portaudio

package portaudio

import (
	"errors"
	"testing"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

func TestOpenWithoutPortAudio(t *testing.T) {
	var d Device
	if _, err := d.Open(pcm.L16Mono24K); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("Open error = %v, want ErrNotBuilt", err)
	}
	if _, err := Devices(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("Devices error = %v, want ErrNotBuilt", err)
	}
	if d.buffer() != DefaultBuffer {
		t.Errorf("buffer() = %v, want %v", d.buffer(), DefaultBuffer)
	}
}
