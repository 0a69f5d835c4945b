// Package ai talks to the generative model that writes explanation scripts,
// summaries and answers, and that reads scripts aloud.
//
// Two providers implement Service: Gemini (google.golang.org/genai) and
// OpenAI (github.com/openai/openai-go). Both render their prompts from the
// same embedded Prompts table and return speech as base64 encoded 16-bit
// little-endian mono PCM at SpeechSampleRate.
//
// Every failure is reported as a *GenerationError:
//
//	script, err := svc.GenerateScript(ctx, ai.ScriptRequest{Text: "The water cycle"})
//	if errors.Is(err, ai.ErrGeneration) {
//	    fmt.Println(ai.Message(err))
//	}
package ai

import (
	"context"
	"fmt"
	"strings"
)

// SpeechSampleRate is the rate of the PCM returned by SynthesizeSpeech.
const SpeechSampleRate = 24000

// Tone is the narration style of a generated script.
type Tone string

// Tones known to the prompt table.
const (
	ToneNeutral      Tone = "neutral"
	ToneFriendly     Tone = "friendly"
	ToneEnthusiastic Tone = "enthusiastic"
	ToneFormal       Tone = "formal"
)

// Level is the audience a script is written for.
type Level string

// Levels known to the prompt table.
const (
	LevelChild    Level = "child"
	LevelBeginner Level = "beginner"
	LevelExpert   Level = "expert"
)

// Tones lists the accepted tones in display order.
var Tones = []Tone{ToneNeutral, ToneFriendly, ToneEnthusiastic, ToneFormal}

// Levels lists the accepted levels in display order.
var Levels = []Level{LevelChild, LevelBeginner, LevelExpert}

// ParseTone validates s as a Tone. The empty string selects ToneNeutral.
func ParseTone(s string) (Tone, error) {
	if s == "" {
		return ToneNeutral, nil
	}
	for _, t := range Tones {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("ai: unknown tone %q", s)
}

// ParseLevel validates s as a Level. The empty string selects LevelBeginner.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelBeginner, nil
	}
	for _, l := range Levels {
		if strings.EqualFold(string(l), s) {
			return l, nil
		}
	}
	return "", fmt.Errorf("ai: unknown level %q", s)
}

// ScriptRequest asks for an explanation of Text.
type ScriptRequest struct {
	Text  string
	Tone  Tone
	Level Level
}

// Summary is a titled summary. Both fields are non-empty when returned
// without error.
type Summary struct {
	Title string `json:"title" jsonschema:"short headline for the summary"`
	Text  string `json:"summary" jsonschema:"summary of the text in a few sentences"`
}

// Service is the text and speech generator.
type Service interface {
	// GenerateScript writes a spoken explanation of req.Text.
	GenerateScript(ctx context.Context, req ScriptRequest) (string, error)

	// Summarize returns a titled summary of text.
	Summarize(ctx context.Context, text string) (*Summary, error)

	// Answer answers question using contextText as the only source.
	Answer(ctx context.Context, contextText, question string) (string, error)

	// SynthesizeSpeech reads text aloud and returns base64 encoded L16 mono
	// PCM at SpeechSampleRate.
	SynthesizeSpeech(ctx context.Context, text string) (string, error)
}
