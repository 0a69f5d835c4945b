package resampler

import (
	"math"
	"testing"

	"github.com/haivivi/explainer/pkg/audio/pcm"
)

func sine(freq float64, sampleRate, frames int) *pcm.Audio {
	data := make([]float32, frames)
	for i := range data {
		data[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return &pcm.Audio{SampleRate: sampleRate, Data: [][]float32{data}}
}

func TestRetimeLength(t *testing.T) {
	src := sine(440, 24000, 24000)
	tests := []struct {
		name string
		rate float64
		want int
	}{
		{"normal", 1, 24000},
		{"double", 2, 12000},
		{"half", 0.5, 48000},
		{"one and a half", 1.5, 16000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Retime(src, tc.rate)
			if err != nil {
				t.Fatalf("Retime(%v): %v", tc.rate, err)
			}
			if out.SampleRate != 24000 {
				t.Errorf("SampleRate = %d, want 24000", out.SampleRate)
			}
			if out.Frames() != tc.want {
				t.Errorf("Frames() = %d, want %d", out.Frames(), tc.want)
			}
		})
	}
}

func TestRetimeIdentityCopies(t *testing.T) {
	src := sine(440, 16000, 160)
	out, err := Retime(src, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src.Data[0] {
		if out.Data[0][i] != src.Data[0][i] {
			t.Fatalf("sample %d changed", i)
		}
	}
	out.Data[0][0] = 1
	if src.Data[0][0] == 1 {
		t.Error("Retime(1) shares the source buffer")
	}
}

func TestRetimeKeepsSignal(t *testing.T) {
	out, err := Retime(sine(220, 24000, 24000), 2)
	if err != nil {
		t.Fatal(err)
	}
	var peak float32
	for _, s := range out.Data[0] {
		if s > peak {
			peak = s
		}
		if s > 1 || s < -1 {
			t.Fatalf("sample %v out of range", s)
		}
	}
	if peak < 0.3 {
		t.Errorf("peak = %v, want the 0.5 amplitude sine to survive", peak)
	}
}

func TestRetimeInvalid(t *testing.T) {
	src := sine(440, 24000, 100)
	for _, rate := range []float64{0, 0.49, 2.01, math.NaN()} {
		if _, err := Retime(src, rate); err == nil {
			t.Errorf("Retime(%v): expected error", rate)
		}
	}
	if _, err := Retime(nil, 1); err == nil {
		t.Error("Retime(nil): expected error")
	}
}
