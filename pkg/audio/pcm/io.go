package pcm

import (
	"io"
)

// Writer is a writer for chunks of audio data.
type Writer interface {
	Write(Chunk) error
}

// WriteCloser is a writer for chunks of audio data that also implements
// io.Closer. Output devices hand one out per playback session.
type WriteCloser interface {
	Writer
	io.Closer
}
