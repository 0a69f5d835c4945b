package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/audio/pcm"
	"github.com/haivivi/explainer/pkg/playback"
)

// Analyze explains req.Text and plays the narration.
//
// It stops any playback, clears the question/answer exchanges and records
// the input in history, then walks Analyzing → Synthesizing → Playing. It
// returns once playback has started; natural completion later moves the
// machine to Idle. On failure the machine is in Error and the error is
// returned; a script produced before a speech failure stays available.
func (m *Machine) Analyze(ctx context.Context, req ai.ScriptRequest) error {
	if req.Tone == "" {
		req.Tone = ai.ToneNeutral
	}
	if req.Level == "" {
		req.Level = ai.LevelBeginner
	}

	m.mu.Lock()
	token, err := m.beginLocked(req.Text, Analyzing)
	if err != nil {
		m.mu.Unlock()
		m.flush()
		return err
	}
	m.tone, m.level = req.Tone, req.Level
	m.script = ""
	m.summary = nil
	m.mu.Unlock()
	m.flush()

	m.record(ctx, req.Text)

	script, err := m.svc.GenerateScript(ctx, req)
	err = asGeneration("script", err)
	if err == nil && strings.TrimSpace(script) == "" {
		err = &ai.GenerationError{Op: "script", Err: ai.ErrEmptyPayload}
	}
	if err := m.step(token, err, func() {
		m.script = script
		m.setStateLocked(Synthesizing, "")
	}); err != nil {
		return err
	}

	audio, err := m.synthesize(ctx, script)
	m.mu.Lock()
	if m.action != token {
		m.mu.Unlock()
		m.logger.Debug("workflow: dropped stale speech result")
		return ErrSuperseded
	}
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		m.flush()
		return err
	}
	m.audio = audio
	m.action = ""
	if err := m.startPlaybackLocked(); err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		m.flush()
		return err
	}
	m.setStateLocked(Playing, "")
	m.mu.Unlock()
	m.flush()
	return nil
}

// Summarize produces a titled summary of text: Summarizing → Idle. Like
// Analyze it stops playback, clears the exchanges and records history. The
// narration is discarded; the script is kept only when text is unchanged.
func (m *Machine) Summarize(ctx context.Context, text string) error {
	m.mu.Lock()
	keepScript := text == m.input
	token, err := m.beginLocked(text, Summarizing)
	if err != nil {
		m.mu.Unlock()
		m.flush()
		return err
	}
	if !keepScript {
		m.script = ""
	}
	m.summary = nil
	m.mu.Unlock()
	m.flush()

	m.record(ctx, text)

	summary, err := m.svc.Summarize(ctx, text)
	err = asGeneration("summary", err)
	if err == nil && (summary == nil || strings.TrimSpace(summary.Title) == "" || strings.TrimSpace(summary.Text) == "") {
		err = &ai.GenerationError{Op: "summary", Err: fmt.Errorf("%w: summary title or text missing", ai.ErrEmptyPayload)}
	}
	return m.step(token, err, func() {
		sum := *summary
		m.summary = &sum
		m.action = ""
		m.setStateLocked(Idle, "")
	})
}

// Answer asks question about the loaded text and appends the exchange. It
// does not stop playback: when the answer arrives the machine returns to
// Playing if the narration is still sounding, else to Idle.
func (m *Machine) Answer(ctx context.Context, question string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Busy() {
		m.mu.Unlock()
		return ErrBusy
	}
	var invalid error
	switch {
	case strings.TrimSpace(question) == "":
		invalid = ErrValidation
	case strings.TrimSpace(m.input) == "":
		invalid = ErrNoText
	}
	if invalid != nil {
		m.failLocked(invalid)
		m.mu.Unlock()
		m.flush()
		return invalid
	}
	token := uuid.NewString()
	m.action = token
	m.playErr = nil
	contextText := m.input
	m.setStateLocked(Answering, "")
	m.mu.Unlock()
	m.flush()

	answer, err := m.svc.Answer(ctx, contextText, question)
	err = asGeneration("answer", err)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = &ai.GenerationError{Op: "answer", Err: ai.ErrEmptyPayload}
	}
	return m.step(token, err, func() {
		m.exchanges = append(m.exchanges, Exchange{Question: question, Answer: answer})
		m.action = ""
		switch {
		case m.playErr != nil:
			m.failLocked(m.playErr)
		case m.playToken != "":
			m.setStateLocked(Playing, "")
		default:
			m.setStateLocked(Idle, "")
		}
	})
}

// Replay plays the loaded narration again from the start.
func (m *Machine) Replay() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Busy() {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.audio == nil {
		m.mu.Unlock()
		return ErrNoAudio
	}
	m.stopPlaybackLocked()
	if err := m.startPlaybackLocked(); err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		m.flush()
		return err
	}
	if m.state != Playing {
		m.setStateLocked(Playing, "")
	}
	m.mu.Unlock()
	m.flush()
	return nil
}

// Stop silences the narration. From Playing the machine moves to Idle; in
// any other state only the audio stops. Calling Stop with nothing playing
// does nothing.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.playToken == "" {
		m.mu.Unlock()
		return
	}
	m.stopPlaybackLocked()
	if m.state == Playing {
		m.setStateLocked(Idle, "")
	}
	m.mu.Unlock()
	m.flush()
}

// beginLocked validates a text submission and, when it is accepted, stops
// playback, resets the text context and enters state. A rejected
// submission either returns ErrBusy/ErrClosed untouched or moves to Error.
func (m *Machine) beginLocked(text string, state State) (string, error) {
	if m.closed {
		return "", ErrClosed
	}
	if m.state.Busy() {
		return "", ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		m.failLocked(ErrValidation)
		return "", ErrValidation
	}
	m.stopPlaybackLocked()
	token := uuid.NewString()
	m.action = token
	m.input = text
	m.exchanges = nil
	m.audio = nil
	m.setStateLocked(state, "")
	return token, nil
}

// step finishes one collaborator call of the action identified by token:
// a stale result is dropped, an error moves to Error, and ok runs under the
// lock otherwise.
func (m *Machine) step(token string, err error, ok func()) error {
	m.mu.Lock()
	if m.action != token {
		m.mu.Unlock()
		m.logger.Debug("workflow: dropped stale result", "err", err)
		return ErrSuperseded
	}
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		m.flush()
		return err
	}
	ok()
	m.mu.Unlock()
	m.flush()
	return nil
}

func (m *Machine) synthesize(ctx context.Context, script string) (*pcm.Audio, error) {
	b64, err := m.svc.SynthesizeSpeech(ctx, script)
	if err != nil {
		return nil, asGeneration("speech", err)
	}
	if b64 == "" {
		return nil, &ai.GenerationError{Op: "speech", Err: fmt.Errorf("%w: no audio", ai.ErrEmptyPayload)}
	}
	raw, err := pcm.DecodeBase64(b64)
	if err != nil {
		return nil, err
	}
	format, _ := pcm.FormatOf(ai.SpeechSampleRate)
	audio, err := format.Decode(raw)
	if err != nil {
		return nil, err
	}
	if audio.Frames() == 0 {
		return nil, &ai.GenerationError{Op: "speech", Err: fmt.Errorf("%w: no audio", ai.ErrEmptyPayload)}
	}
	m.logger.Debug("workflow: narration decoded", "duration", audio.Duration(), "bytes", len(raw))
	return audio, nil
}

func (m *Machine) startPlaybackLocked() error {
	token := uuid.NewString()
	if _, err := m.player.Start(m.audio, m.gain, m.rate, func(err error) { m.playbackDone(token, err) }); err != nil {
		return err
	}
	m.playToken = token
	return nil
}

func (m *Machine) stopPlaybackLocked() {
	if m.playToken == "" {
		return
	}
	m.playToken = ""
	m.player.Stop()
}

// playbackDone handles the end of the session started with token: a
// natural completion when err is nil, an output failure otherwise. A failure
// during Answering is reported once the answer has arrived.
func (m *Machine) playbackDone(token string, err error) {
	m.mu.Lock()
	if token != m.playToken {
		m.mu.Unlock()
		m.logger.Debug("workflow: ignored end of a replaced session", "err", err)
		return
	}
	m.playToken = ""
	switch {
	case err != nil && m.state == Answering:
		m.playErr = err
	case err != nil:
		m.failLocked(err)
	case m.state == Playing:
		m.setStateLocked(Idle, "")
	}
	m.mu.Unlock()
	m.flush()
}

// failLocked enters Error. The state never rests in Error while audio
// sounds.
func (m *Machine) failLocked(err error) {
	m.action = ""
	m.playErr = nil
	m.stopPlaybackLocked()
	m.setStateLocked(Error, errorMessage(err))
}

func (m *Machine) record(ctx context.Context, text string) {
	if m.history != nil {
		m.history.Record(ctx, text)
	}
}

// asGeneration classifies a collaborator failure as a generation error.
func asGeneration(op string, err error) error {
	if err == nil || errors.Is(err, ai.ErrGeneration) {
		return err
	}
	return &ai.GenerationError{Op: op, Err: err}
}

// errorMessage turns err into the text shown in the Error state.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "Please enter some text first."
	case errors.Is(err, ErrNoText):
		return "Load a text before asking questions."
	case errors.Is(err, ai.ErrGeneration):
		return ai.Message(err)
	case errors.Is(err, pcm.ErrDecode):
		return "The narration audio could not be decoded."
	case errors.Is(err, playback.ErrUnavailable):
		return "Audio output is unavailable."
	case err != nil && err.Error() != "":
		return "Something went wrong: " + err.Error()
	}
	return "Something went wrong. Please try again."
}
