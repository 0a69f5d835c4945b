package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

// NullDevice discards audio at real-time speed, so sessions take as long as
// they would on a speaker. Useful for headless runs and the websocket bridge
// where the client plays the exported file itself.
type NullDevice struct{}

// Open returns a paced discarding writer.
func (NullDevice) Open(format pcm.Format) (pcm.WriteCloser, error) {
	return &nullOutput{closed: make(chan struct{})}, nil
}

type nullOutput struct {
	once   sync.Once
	closed chan struct{}
}

func (o *nullOutput) Write(c pcm.Chunk) error {
	t := time.NewTimer(c.Format().Duration(c.Len()))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-o.closed:
		return errors.New("playback: output closed")
	}
}

func (o *nullOutput) Close() error {
	o.once.Do(func() { close(o.closed) })
	return nil
}
