package pcm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM = 1
	wavBitDepth  = 16
)

// WriteWAV writes a to w as a canonical 16-bit PCM WAV file: a 44-byte
// header followed by interleaved samples quantized with Quantize.
func WriteWAV(w io.WriteSeeker, a *Audio) error {
	if err := a.validate(); err != nil {
		return err
	}
	channels := a.Channels()
	frames := a.Frames()
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: a.SampleRate},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, frames*channels),
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			buf.Data[i*channels+c] = int(Quantize(a.Data[c][i]))
		}
	}

	enc := wav.NewEncoder(w, a.SampleRate, wavBitDepth, channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("pcm: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("pcm: close wav encoder: %w", err)
	}
	return nil
}

// EncodeWAV returns a as an in-memory WAV file. See WriteWAV.
func EncodeWAV(a *Audio) ([]byte, error) {
	var f memFile
	if err := WriteWAV(&f, a); err != nil {
		return nil, err
	}
	return f.b, nil
}

// DecodeWAV reads a 16-bit integer PCM WAV file. Chunks other than "fmt "
// and "data" are skipped; trailing chunks after the samples are ignored.
func DecodeWAV(b []byte) (*Audio, error) {
	r := bytes.NewReader(b)
	d := wav.NewDecoder(r)
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch {
	case d.PCMChunk == nil:
		return nil, fmt.Errorf("%w: missing data chunk", ErrDecode)
	case d.WavAudioFormat != wavFormatPCM:
		return nil, fmt.Errorf("%w: unsupported format tag %d", ErrDecode, d.WavAudioFormat)
	case d.BitDepth != wavBitDepth:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, d.BitDepth)
	case d.NumChans == 0 || d.SampleRate == 0:
		return nil, fmt.Errorf("%w: invalid layout rate=%d channels=%d", ErrDecode, d.SampleRate, d.NumChans)
	case r.Len() < d.PCMSize:
		return nil, fmt.Errorf("%w: data chunk truncated", ErrDecode)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	channels := int(d.NumChans)
	samples := min(len(pcm.Data), d.PCMSize/2)
	samples -= samples % channels
	a := &Audio{
		SampleRate: int(d.SampleRate),
		Data:       make([][]float32, channels),
	}
	frames := samples / channels
	for c := range a.Data {
		a.Data[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			a.Data[c][i] = float32(pcm.Data[i*channels+c]) / 32768
		}
	}
	return a, nil
}

// memFile is an in-memory io.WriteSeeker for the WAV encoder, which patches
// the chunk sizes after the samples are written.
type memFile struct {
	b   []byte
	off int
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.off + len(p); end > len(f.b) {
		f.b = append(f.b, make([]byte, end-len(f.b))...)
	}
	n := copy(f.b[f.off:], p)
	f.off += n
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(f.off)
	case io.SeekEnd:
		base = int64(len(f.b))
	default:
		return 0, errors.New("pcm: invalid whence")
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("pcm: negative position")
	}
	f.off = int(pos)
	return pos, nil
}
