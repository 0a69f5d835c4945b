// Package resampler renders playback-rate changes into audio buffers using the
// pure Go SoX-style resampler from github.com/tphakala/go-audio-resampling.
//
// A rate multiplier r is applied the naive way a player applies it: the
// buffer is treated as if it had been recorded at SampleRate*r and converted
// back to SampleRate, so the result is 1/r as long and pitch shifts with the
// speed.
//
// Example usage:
//
//	faster, err := resampler.Retime(audio, 1.5)
//	if err != nil {
//	    return err
//	}
//	wav, err := pcm.EncodeWAV(faster)
package resampler
