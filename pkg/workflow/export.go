package workflow

import (
	"github.com/haivivi/explainer/pkg/audio/pcm"
	"github.com/haivivi/explainer/pkg/audio/resampler"
)

// Names under which exports are offered for download.
const (
	AudioFilename  = "explanation.wav"
	ScriptFilename = "script.txt"
)

// ExportAudio returns the loaded narration as a WAV file.
func (m *Machine) ExportAudio() ([]byte, error) {
	audio := m.loadedAudio()
	if audio == nil {
		return nil, ErrNoAudio
	}
	return pcm.EncodeWAV(audio)
}

// ExportAudioAt returns the narration rendered at playback rate as a WAV
// file, so the file sounds like what the listener heard.
func (m *Machine) ExportAudioAt(rate float64) ([]byte, error) {
	audio := m.loadedAudio()
	if audio == nil {
		return nil, ErrNoAudio
	}
	retimed, err := resampler.Retime(audio, rate)
	if err != nil {
		return nil, err
	}
	return pcm.EncodeWAV(retimed)
}

// ExportScript returns the generated script as UTF-8 text, unchanged.
func (m *Machine) ExportScript() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.script == "" {
		return nil, ErrNoScript
	}
	return []byte(m.script), nil
}

// loadedAudio returns the current buffer. Buffers are replaced, never
// modified, so the caller may read it without the lock.
func (m *Machine) loadedAudio() *pcm.Audio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}
