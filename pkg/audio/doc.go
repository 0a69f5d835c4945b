// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - pcm: 16-bit PCM formats, decoding of speech payloads and WAV export
//   - resampler: playback-rate rendering for exported audio
//   - portaudio: PortAudio output device (build tag "portaudio")
//
// Example usage:
//
//	import "github.com/haivivi/explainer/pkg/audio/pcm"
//
//	raw, err := pcm.DecodeBase64(payload)
//	audio, err := pcm.L16Mono24K.Decode(raw)
//	wav, err := pcm.EncodeWAV(audio)
package audio
