package pcm

import (
	"fmt"
	"io"
	"time"
)

// Format is a mono little-endian 16-bit PCM layout at a fixed sample rate.
type Format int

const (
	L16Mono16K Format = iota
	// L16Mono24K is the layout of synthesized speech.
	L16Mono24K
	L16Mono48K
)

var sampleRates = [...]int{
	L16Mono16K: 16000,
	L16Mono24K: 24000,
	L16Mono48K: 48000,
}

// FormatOf returns the format with the given sample rate.
func FormatOf(sampleRate int) (Format, bool) {
	for f, rate := range sampleRates {
		if rate == sampleRate {
			return Format(f), true
		}
	}
	return 0, false
}

// SampleRate returns the sample rate in Hz. It panics on an unknown format.
func (f Format) SampleRate() int {
	if f < 0 || int(f) >= len(sampleRates) {
		panic(fmt.Sprintf("pcm: invalid format %d", int(f)))
	}
	return sampleRates[f]
}

// Channels is always 1.
func (f Format) Channels() int {
	return 1
}

// SamplesInDuration returns the number of samples per channel in d.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// Duration returns the play time of n bytes.
func (f Format) Duration(n int64) time.Duration {
	samples := n / 2 / int64(f.Channels())
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate())
}

// Decode interprets b as samples in this format.
func (f Format) Decode(b []byte) (*Audio, error) {
	return DecodeL16(b, f.SampleRate(), f.Channels())
}

// DataChunk wraps data as a chunk of this format.
func (f Format) DataChunk(data []byte) Chunk {
	return &DataChunk{Data: data, fmt: f}
}

func (f Format) String() string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=%d", f.SampleRate(), f.Channels())
}

// Chunk is a piece of audio handed to an output device.
type Chunk interface {
	Len() int64
	Format() Format
	WriteTo(w io.Writer) (int64, error)
}

// DataChunk is a chunk of raw little-endian 16-bit audio.
type DataChunk struct {
	Data []byte
	fmt  Format
}

// Len returns the length in bytes.
func (c *DataChunk) Len() int64 {
	return int64(len(c.Data))
}

func (c *DataChunk) Format() Format {
	return c.fmt
}

// Samples returns the chunk content as signed 16-bit samples.
func (c *DataChunk) Samples() []int16 {
	out := make([]int16, len(c.Data)/2)
	for i := range out {
		out[i] = int16(uint16(c.Data[2*i]) | uint16(c.Data[2*i+1])<<8)
	}
	return out
}

// WriteTo writes the raw bytes to w.
func (c *DataChunk) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Data)
	return int64(n), err
}
