package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

const (
	stateRunning int32 = iota
	stateStopped
	stateFinished
	stateFailed
)

// Session is the handle of one playback. It ends when the buffer has been
// fully rendered (finished), when Stop is called (stopped) or when the device
// rejects a write (failed), whichever happens first.
type Session struct {
	audio  *pcm.Audio
	format pcm.Format
	out    pcm.WriteCloser
	frame  int // output samples per write
	onDone func(error)
	logger *slog.Logger

	gain pcm.AtomicFloat32
	rate pcm.AtomicFloat32

	state    atomic.Int32
	cursor   atomic.Int64 // source frames consumed
	err      error        // set by run before done is closed
	quit     chan struct{}
	done     chan struct{}
	closeOut sync.Once
}

func newSession(a *pcm.Audio, format pcm.Format, out pcm.WriteCloser, frame time.Duration, onDone func(error), logger *slog.Logger) *Session {
	n := int(format.SamplesInDuration(frame))
	if n <= 0 {
		n = 1
	}
	return &Session{
		audio:  a,
		format: format,
		out:    out,
		frame:  n,
		onDone: onDone,
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Stop ends the session without reporting completion and waits until the
// output has been released. Safe to call more than once, concurrently, and
// from the completion callback.
func (s *Session) Stop() {
	if s.state.CompareAndSwap(stateRunning, stateStopped) {
		close(s.quit)
		s.release()
	}
	<-s.done
}

// Done is closed once the output has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Active reports whether the session is still rendering.
func (s *Session) Active() bool {
	return s.state.Load() == stateRunning
}

// Finished reports whether the session played out naturally.
func (s *Session) Finished() bool {
	return s.state.Load() == stateFinished
}

// Err returns the device error, wrapping ErrUnavailable, that ended the
// session early. Valid after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Position returns how much of the source buffer has been played.
func (s *Session) Position() time.Duration {
	return time.Duration(s.cursor.Load()) * time.Second / time.Duration(s.audio.SampleRate)
}

// Gain returns the current gain.
func (s *Session) Gain() float64 { return float64(s.gain.Load()) }

// Rate returns the current playback rate.
func (s *Session) Rate() float64 { return float64(s.rate.Load()) }

// SetGain changes the gain of the sounding audio. v is clamped.
func (s *Session) SetGain(v float64) { s.gain.Store(float32(ClampGain(v))) }

// SetRate changes the playback rate of the sounding audio. v is clamped.
func (s *Session) SetRate(v float64) { s.rate.Store(float32(ClampRate(v))) }

func (s *Session) release() {
	s.closeOut.Do(func() {
		if err := s.out.Close(); err != nil {
			s.logger.Warn("playback: close output", "err", err)
		}
	})
}

func (s *Session) run() {
	err := s.render()

	end := stateFinished
	if err != nil {
		end = stateFailed
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	ended := s.state.CompareAndSwap(stateRunning, end)
	s.release()
	s.err = err
	close(s.done)

	if !ended {
		return
	}
	if err != nil {
		s.logger.Warn("playback: output failed", "position", s.Position(), "err", err)
	} else {
		s.logger.Debug("playback: finished", "position", s.Position())
	}
	if s.onDone != nil {
		s.onDone(err)
	}
}

// render walks the source with a fractional cursor advancing by the current
// rate per output sample, interpolating linearly between neighbours.
func (s *Session) render() error {
	src := s.audio.Data[0]
	buf := make([]byte, 0, s.frame*2)
	var pos float64

	for {
		select {
		case <-s.quit:
			return nil
		default:
		}
		if int(pos) >= len(src) {
			return nil
		}

		gain := s.gain.Load()
		rate := float64(s.rate.Load())
		buf = buf[:0]
		for i := 0; i < s.frame; i++ {
			idx := int(pos)
			if idx >= len(src) {
				break
			}
			v := src[idx]
			if idx+1 < len(src) {
				frac := float32(pos - float64(idx))
				v += (src[idx+1] - v) * frac
			}
			q := uint16(pcm.Quantize(v * gain))
			buf = append(buf, byte(q), byte(q>>8))
			pos += rate
		}
		s.cursor.Store(int64(min(int(pos), len(src))))

		if err := s.out.Write(s.format.DataChunk(append([]byte(nil), buf...))); err != nil {
			if !s.Active() {
				return nil
			}
			return err
		}
	}
}
