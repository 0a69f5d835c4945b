package pcm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrDecode is returned (wrapped) when an audio payload is malformed.
var ErrDecode = errors.New("pcm: decode error")

// Audio is a decoded buffer of normalized samples in [-1.0, 1.0].
//
// Data holds one slice per channel; all slices have the same length.
type Audio struct {
	SampleRate int
	Data       [][]float32
}

// Channels returns the number of channels.
func (a *Audio) Channels() int {
	return len(a.Data)
}

// Frames returns the number of samples per channel.
func (a *Audio) Frames() int {
	if len(a.Data) == 0 {
		return 0
	}
	return len(a.Data[0])
}

// Duration returns the playing time of the buffer at its native rate.
func (a *Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.Frames()) * time.Second / time.Duration(a.SampleRate)
}

// Format returns the matching Format for mono audio at a known rate.
func (a *Audio) Format() (Format, bool) {
	if a.Channels() != 1 {
		return 0, false
	}
	return FormatOf(a.SampleRate)
}

func (a *Audio) validate() error {
	if a == nil {
		return errors.New("pcm: nil audio")
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("pcm: invalid sample rate %d", a.SampleRate)
	}
	if len(a.Data) == 0 {
		return errors.New("pcm: audio has no channels")
	}
	n := len(a.Data[0])
	for i, ch := range a.Data[1:] {
		if len(ch) != n {
			return fmt.Errorf("pcm: channel %d has %d samples, want %d", i+1, len(ch), n)
		}
	}
	return nil
}

// DecodeBase64 decodes a standard (padded) base64 payload.
//
// Unlike base64.StdEncoding.DecodeString, line breaks are rejected like any
// other character outside the alphabet.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return nil, fmt.Errorf("%w: illegal base64 data at input byte %d", ErrDecode, i)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}

// DecodeL16 interprets b as interleaved little-endian signed 16-bit samples
// and de-interleaves them into an Audio with the given layout. Each sample is
// divided by 32768 so the result lies in [-1.0, 1.0).
func DecodeL16(b []byte, sampleRate, channels int) (*Audio, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid layout rate=%d channels=%d", ErrDecode, sampleRate, channels)
	}
	frameSize := 2 * channels
	if len(b)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrDecode, len(b), frameSize)
	}
	frames := len(b) / frameSize
	a := &Audio{
		SampleRate: sampleRate,
		Data:       make([][]float32, channels),
	}
	for c := range a.Data {
		a.Data[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(uint16(b[off]) | uint16(b[off+1])<<8)
			a.Data[c][i] = float32(s) / 32768
		}
	}
	return a, nil
}

// Quantize converts a float sample to a signed 16-bit value. The sample is
// clamped to [-1.0, 1.0] first and rounded to the nearest step, ties away
// from zero. NaN maps to 0.
func Quantize(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := math.Round(float64(s) * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// L16 returns the interleaved little-endian 16-bit encoding of a.
func (a *Audio) L16() []byte {
	channels, frames := a.Channels(), a.Frames()
	out := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := uint16(Quantize(a.Data[c][i]))
			off := (i*channels + c) * 2
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
		}
	}
	return out
}
