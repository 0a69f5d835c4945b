package resampler

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

// Rate bounds accepted by Retime.
const (
	MinRate = 0.5
	MaxRate = 2.0
)

// tail of silence fed after the signal so the filter delay line is drained.
const flushDuration = 0.1 // seconds

// Retime returns a copy of a played back at rate. The output keeps a's sample
// rate and holds round(Frames/rate) frames.
func Retime(a *pcm.Audio, rate float64) (*pcm.Audio, error) {
	if a == nil || a.SampleRate <= 0 || a.Channels() == 0 {
		return nil, fmt.Errorf("resampler: invalid audio")
	}
	if math.IsNaN(rate) || rate < MinRate || rate > MaxRate {
		return nil, fmt.Errorf("resampler: rate %v out of range [%v, %v]", rate, MinRate, MaxRate)
	}

	channels := a.Channels()
	frames := a.Frames()
	want := int(math.Round(float64(frames) / rate))
	if rate == 1 || frames == 0 {
		return clip(a, want), nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(a.SampleRate) * rate,
		OutputRate: float64(a.SampleRate),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	pad := int(float64(a.SampleRate) * rate * flushDuration)
	input := make([]float64, (frames+pad)*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			input[i*channels+c] = float64(a.Data[c][i])
		}
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	out := &pcm.Audio{
		SampleRate: a.SampleRate,
		Data:       make([][]float32, channels),
	}
	for c := range out.Data {
		out.Data[c] = make([]float32, want)
	}
	n := min(len(output)/channels, want)
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			out.Data[c][i] = clamp(output[i*channels+c])
		}
	}
	return out, nil
}

func clip(a *pcm.Audio, frames int) *pcm.Audio {
	out := &pcm.Audio{
		SampleRate: a.SampleRate,
		Data:       make([][]float32, a.Channels()),
	}
	for c, ch := range a.Data {
		out.Data[c] = make([]float32, frames)
		copy(out.Data[c], ch)
	}
	return out
}

func clamp(v float64) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return float32(v)
}
