//go:build portaudio

package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_output(void **stream,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer) {
    return Pa_OpenStream((PaStream**)stream, NULL, outputParams, sampleRate,
                         framesPerBuffer, paClipOff, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_abort_stream(void *stream) {
    return Pa_AbortStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

var (
	initOnce sync.Once
	initErr  error
)

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New(C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library.
// It is safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate terminates the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// DeviceInfo describes an output device.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultOutput   bool
}

// Devices lists devices that can play audio.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}
	defaultOutput := int(C.Pa_GetDefaultOutputDevice())

	var devices []DeviceInfo
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil || info.maxOutputChannels <= 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:             i,
			Name:              C.GoString(info.name),
			MaxOutputChannels: int(info.maxOutputChannels),
			DefaultSampleRate: float64(info.defaultSampleRate),
			IsDefaultOutput:   i == defaultOutput,
		})
	}
	return devices, nil
}

// Open starts an output stream on the default device.
func (d *Device) Open(format pcm.Format) (pcm.WriteCloser, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	frames := int(format.SamplesInDuration(d.buffer()))

	dev := C.Pa_GetDefaultOutputDevice()
	if dev == C.paNoDevice {
		return nil, errors.New("portaudio: no default output device")
	}
	info := C.Pa_GetDeviceInfo(dev)
	params := &C.PaStreamParameters{
		device:                    dev,
		channelCount:              C.int(format.Channels()),
		sampleFormat:              C.paInt16,
		suggestedLatency:          info.defaultLowOutputLatency,
		hostApiSpecificStreamInfo: nil,
	}

	var stream unsafe.Pointer
	if err := paError(C.pa_open_output(&stream, params, C.double(format.SampleRate()), C.ulong(frames))); err != nil {
		return nil, fmt.Errorf("portaudio: open: %w", err)
	}
	if err := paError(C.pa_start_stream(stream)); err != nil {
		C.pa_close_stream(stream)
		return nil, fmt.Errorf("portaudio: start: %w", err)
	}

	size := frames * format.Channels() * 2
	return &outputStream{
		stream:   stream,
		format:   format,
		buffer:   C.malloc(C.size_t(size)),
		capacity: frames * format.Channels(),
	}, nil
}

var errClosed = errors.New("portaudio: stream closed")

type outputStream struct {
	// mu serializes writes and guards stream and buffer against release.
	mu       sync.Mutex
	stream   unsafe.Pointer
	format   pcm.Format
	buffer   unsafe.Pointer
	capacity int // samples
	closed   atomic.Bool
}

// Write blocks until the chunk has been queued on the device.
func (s *outputStream) Write(chunk pcm.Chunk) error {
	if chunk.Format() != s.format {
		return fmt.Errorf("portaudio: chunk format %v, stream is %v", chunk.Format(), s.format)
	}
	dc, ok := chunk.(*pcm.DataChunk)
	if !ok {
		return fmt.Errorf("portaudio: unsupported chunk type %T", chunk)
	}
	samples := dc.Samples()

	s.mu.Lock()
	defer s.mu.Unlock()
	channels := s.format.Channels()
	for len(samples) > 0 {
		if s.closed.Load() {
			return errClosed
		}
		n := min(len(samples), s.capacity)
		C.memcpy(s.buffer, unsafe.Pointer(&samples[0]), C.size_t(n*2))
		if err := paError(C.pa_write_stream(s.stream, s.buffer, C.ulong(n/channels))); err != nil {
			if s.closed.Load() {
				return errClosed
			}
			return fmt.Errorf("portaudio: write: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

// Close aborts pending output and releases the stream. The abort runs without
// the write lock so a Write blocked in the device returns right away.
func (s *outputStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	C.pa_abort_stream(s.stream)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := paError(C.pa_close_stream(s.stream))
	C.free(s.buffer)
	return err
}
