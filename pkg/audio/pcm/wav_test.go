package pcm

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func randomL16(r *rand.Rand, samples int) []byte {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(r.IntN(1<<16)))
	}
	return b
}

func TestEncodeWAVHeader(t *testing.T) {
	a, err := L16Mono24K.Decode(l16(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeWAV(a)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(b) != 44+6 {
		t.Fatalf("len = %d, want 50", len(b))
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"RIFF", string(b[0:4]), "RIFF"},
		{"chunk size", le.Uint32(b[4:8]), uint32(42)},
		{"WAVE", string(b[8:12]), "WAVE"},
		{"fmt id", string(b[12:16]), "fmt "},
		{"fmt size", le.Uint32(b[16:20]), uint32(16)},
		{"format tag", le.Uint16(b[20:22]), uint16(1)},
		{"channels", le.Uint16(b[22:24]), uint16(1)},
		{"sample rate", le.Uint32(b[24:28]), uint32(24000)},
		{"byte rate", le.Uint32(b[28:32]), uint32(48000)},
		{"block align", le.Uint16(b[32:34]), uint16(2)},
		{"bits", le.Uint16(b[34:36]), uint16(16)},
		{"data id", string(b[36:40]), "data"},
		{"data size", le.Uint32(b[40:44]), uint32(6)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !bytes.Equal(b[44:], l16(1, 2, 3)) {
		t.Errorf("payload = %v, want %v", b[44:], l16(1, 2, 3))
	}
}

func TestEncodeWAVInvalid(t *testing.T) {
	tests := []struct {
		name  string
		audio *Audio
	}{
		{"nil", nil},
		{"no channels", &Audio{SampleRate: 24000}},
		{"zero rate", &Audio{Data: [][]float32{{0}}}},
		{"ragged channels", &Audio{SampleRate: 24000, Data: [][]float32{{0, 0}, {0}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeWAV(tc.audio); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestEncodeWAVClampsSamples(t *testing.T) {
	a := &Audio{SampleRate: 16000, Data: [][]float32{{2, -2, 0.25}}}
	b, err := EncodeWAV(a)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b[44:], l16(32767, -32768, 8192)) {
		t.Errorf("payload = %v", b[44:])
	}
}

// Decoding the WAV produced from a base64 L16 payload reproduces the original
// samples within one quantization step.
func TestWAVRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{0, 1, 2, 479, 24000} {
		raw := randomL16(r, n)
		b, err := DecodeBase64(base64.StdEncoding.EncodeToString(raw))
		if err != nil {
			t.Fatal(err)
		}
		a, err := DecodeL16(b, 24000, 1)
		if err != nil {
			t.Fatal(err)
		}
		out, err := EncodeWAV(a)
		if err != nil {
			t.Fatalf("EncodeWAV(%d samples): %v", n, err)
		}
		back, err := DecodeWAV(out)
		if err != nil {
			t.Fatalf("DecodeWAV(%d samples): %v", n, err)
		}
		if back.SampleRate != 24000 || back.Channels() != 1 || back.Frames() != n {
			t.Fatalf("layout = %d Hz %d ch %d frames", back.SampleRate, back.Channels(), back.Frames())
		}
		want := a.L16()
		got := back.L16()
		for i := 0; i < n; i++ {
			w := int(int16(binary.LittleEndian.Uint16(want[i*2:])))
			g := int(int16(binary.LittleEndian.Uint16(got[i*2:])))
			if d := w - g; d > 1 || d < -1 {
				t.Fatalf("sample %d: got %d, want %d", i, g, w)
			}
		}
	}
}

// The exported file must open in an independent WAV decoder.
func TestEncodeWAVThirdPartyDecoder(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	raw := randomL16(r, 2400)
	a, err := L16Mono24K.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeWAV(a)
	if err != nil {
		t.Fatal(err)
	}

	d := wav.NewDecoder(bytes.NewReader(b))
	if !d.IsValidFile() {
		t.Fatal("go-audio/wav rejected the file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if d.SampleRate != 24000 || d.NumChans != 1 || d.BitDepth != 16 {
		t.Fatalf("decoder header = %d Hz %d ch %d bit", d.SampleRate, d.NumChans, d.BitDepth)
	}
	if len(buf.Data) != 2400 {
		t.Fatalf("decoded %d samples, want 2400", len(buf.Data))
	}
	for i, v := range buf.Data {
		want := int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		if v != want {
			t.Fatalf("sample %d = %d, want %d", i, v, want)
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	good, err := EncodeWAV(&Audio{SampleRate: 24000, Data: [][]float32{{0, 0.5}}})
	if err != nil {
		t.Fatal(err)
	}
	eightBit := bytes.Clone(good)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)
	float := bytes.Clone(good)
	binary.LittleEndian.PutUint16(float[20:22], 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX0000WAVE")},
		{"truncated data", good[:len(good)-1]},
		{"no data chunk", good[:36]},
		{"8-bit", eightBit},
		{"float format", float},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeWAV(tc.data); !errors.Is(err, ErrDecode) {
				t.Fatalf("DecodeWAV error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	good, err := EncodeWAV(&Audio{SampleRate: 16000, Data: [][]float32{{0.5, -0.5}, {0.25, -0.25}}})
	if err != nil {
		t.Fatal(err)
	}
	junk := []byte{'j', 'u', 'n', 'k', 4, 0, 0, 0, 1, 2, 3, 4}
	b := append(bytes.Clone(good[:36]), junk...)
	b = append(b, good[36:]...)
	b = append(b, 'L', 'I', 'S', 'T', 2, 0, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)-8))

	a, err := DecodeWAV(b)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if a.SampleRate != 16000 || a.Channels() != 2 || a.Frames() != 2 {
		t.Fatalf("layout = %d Hz %d ch %d frames", a.SampleRate, a.Channels(), a.Frames())
	}
	want := [][]float32{{0.5, -0.5}, {0.25, -0.25}}
	for c := range want {
		for i, v := range want[c] {
			if a.Data[c][i] != v {
				t.Errorf("channel %d sample %d = %v, want %v", c, i, a.Data[c][i], v)
			}
		}
	}
}

func TestWriteWAVFile(t *testing.T) {
	a := &Audio{SampleRate: 24000, Data: [][]float32{{0, 0.5, -0.5, 0.25}}}
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWAV(f, a); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	inMemory, err := EncodeWAV(a)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, inMemory) {
		t.Fatalf("file and in-memory encodings differ: %d vs %d bytes", len(onDisk), len(inMemory))
	}
}
