// Package pcm provides types and utilities for working with PCM (Pulse Code
// Modulation) audio data.
//
// Speech services return little-endian signed 16-bit samples, usually base64
// encoded. This package turns such payloads into an Audio buffer of
// normalized float samples and writes Audio back out as a canonical WAV file.
//
// Key types:
//   - Format: mono 16-bit layout at a fixed sample rate
//   - Audio: decoded samples in [-1.0, 1.0], one slice per channel
//   - Chunk: interface for raw audio data chunks handed to output devices
//   - Writer: interface for writing audio chunks
//
// Decoding failures wrap ErrDecode:
//
//	raw, err := pcm.DecodeBase64(payload)
//	if err != nil {
//	    return err
//	}
//	audio, err := pcm.L16Mono24K.Decode(raw)
//	if errors.Is(err, pcm.ErrDecode) {
//	    // malformed payload
//	}
package pcm
