// Package playback owns the single sounding audio source of the program.
//
// A Controller renders a decoded pcm.Audio buffer into an output Device in
// small frames, applying gain and playback rate as it goes so both can be
// changed while the audio is sounding. Starting a new session always tears
// the previous one down first, so at most one Session writes to the device
// at any time.
//
// The end of a session is reported through the onDone callback passed to
// Start. It is called exactly once: with nil when the buffer plays out
// naturally, or with an error wrapping ErrUnavailable when the device fails
// partway through. It is never called for a stopped session. Stop is
// idempotent and may be called from inside onDone.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

// Valid ranges for gain and playback rate.
const (
	MinGain = 0.0
	MaxGain = 1.0
	MinRate = 0.5
	MaxRate = 2.0
)

// DefaultFrame is the amount of source audio rendered per device write when
// Config.Frame is zero.
const DefaultFrame = 20 * time.Millisecond

// ErrUnavailable is returned (wrapped) by Start when the output device cannot
// be opened, and passed to onDone when it fails during playback.
var ErrUnavailable = errors.New("playback: audio output unavailable")

// Device opens an output for one playback session. The returned writer is
// closed when the session ends.
type Device interface {
	Open(format pcm.Format) (pcm.WriteCloser, error)
}

// Config configures a Controller.
type Config struct {
	// Device receives rendered audio. Required.
	Device Device

	// Frame is the duration of one device write. Defaults to DefaultFrame.
	Frame time.Duration

	// Logger for playback events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Controller starts and stops playback sessions on one device.
type Controller struct {
	device Device
	frame  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewController returns a Controller writing to cfg.Device.
func NewController(cfg Config) *Controller {
	frame := cfg.Frame
	if frame <= 0 {
		frame = DefaultFrame
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		device: cfg.Device,
		frame:  frame,
		logger: logger,
	}
}

// Start stops any current session and begins playing a at the given gain and
// rate (both clamped). onDone may be nil; it receives nil on natural
// completion and the device error otherwise.
//
// Start fails with ErrUnavailable when the device cannot be opened; the
// previous session is stopped regardless.
func (c *Controller) Start(a *pcm.Audio, gain, rate float64, onDone func(error)) (*Session, error) {
	if a == nil {
		return nil, errors.New("playback: nil audio")
	}
	format, ok := a.Format()
	if !ok {
		return nil, fmt.Errorf("playback: unsupported layout %d Hz x %d channels", a.SampleRate, a.Channels())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Stop()
		c.current = nil
	}
	if c.device == nil {
		return nil, fmt.Errorf("%w: no device configured", ErrUnavailable)
	}
	out, err := c.device.Open(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := newSession(a, format, out, c.frame, onDone, c.logger)
	s.SetGain(gain)
	s.SetRate(rate)
	c.current = s
	go s.run()

	c.logger.Debug("playback: started",
		"duration", a.Duration(),
		"gain", s.Gain(),
		"rate", s.Rate())
	return s, nil
}

// Stop silences and releases the current session. It is a no-op when
// nothing is playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// Playing reports whether a session is currently sounding.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.Active()
}

// SetGain clamps v into [MinGain, MaxGain], applies it to the current
// session if any, and returns the applied value.
func (c *Controller) SetGain(v float64) float64 {
	v = ClampGain(v)
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.SetGain(v)
	}
	return v
}

// SetRate clamps v into [MinRate, MaxRate], applies it to the current
// session if any, and returns the applied value.
func (c *Controller) SetRate(v float64) float64 {
	v = ClampRate(v)
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.SetRate(v)
	}
	return v
}

// ClampGain limits v to [MinGain, MaxGain]. NaN maps to MaxGain.
func ClampGain(v float64) float64 {
	if math.IsNaN(v) {
		return MaxGain
	}
	return min(max(v, MinGain), MaxGain)
}

// ClampRate limits v to [MinRate, MaxRate]. NaN maps to 1.
func ClampRate(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return min(max(v, MinRate), MaxRate)
}
