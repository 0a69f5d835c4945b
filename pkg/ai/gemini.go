package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// Gemini defaults.
const (
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultGeminiSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultGeminiVoice       = "Kore"
)

var _ Service = (*Gemini)(nil)

// Gemini implements Service with the Google Gemini API.
type Gemini struct {
	Client *genai.Client

	// Model generates text. Should not start with "models/".
	Model string

	// SpeechModel must support the AUDIO response modality.
	SpeechModel string

	// Voice is a prebuilt Gemini voice name.
	Voice string

	// Language selects the prompt language. Defaults to DefaultLanguage.
	Language string

	// Prompts defaults to DefaultPrompts().
	Prompts *Prompts

	Logger *slog.Logger
}

// NewGemini returns a Gemini service with the default models and voice.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: gemini client: %w", err)
	}
	return &Gemini{
		Client:      client,
		Model:       DefaultGeminiModel,
		SpeechModel: DefaultGeminiSpeechModel,
		Voice:       DefaultGeminiVoice,
	}, nil
}

func (g *Gemini) prompts() *Prompts {
	if g.Prompts == nil {
		g.Prompts = DefaultPrompts()
	}
	return g.Prompts
}

func (g *Gemini) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Gemini) textConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(g.prompts().System(g.Language))},
		},
		SafetySettings: []*genai.SafetySetting{
			{
				Category:  genai.HarmCategoryHateSpeech,
				Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
			},
			{
				Category:  genai.HarmCategoryHarassment,
				Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
			},
			{
				Category:  genai.HarmCategoryDangerousContent,
				Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
			},
		},
	}
}

// GenerateScript implements Service.
func (g *Gemini) GenerateScript(ctx context.Context, req ScriptRequest) (string, error) {
	prompt, err := g.prompts().Script(g.Language, req)
	if err != nil {
		return "", genErr("script", err)
	}
	text, err := g.generateText(ctx, prompt, g.textConfig())
	return text, genErr("script", err)
}

// Summarize implements Service.
func (g *Gemini) Summarize(ctx context.Context, text string) (*Summary, error) {
	prompt, err := g.prompts().Summary(g.Language, text)
	if err != nil {
		return nil, genErr("summary", err)
	}
	cfg := g.textConfig()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = geminiConvSchema(summarySchema)
	raw, err := g.generateText(ctx, prompt, cfg)
	if err != nil {
		return nil, genErr("summary", err)
	}
	s, err := parseSummary(raw)
	if err != nil {
		return nil, genErr("summary", err)
	}
	return s, nil
}

// Answer implements Service.
func (g *Gemini) Answer(ctx context.Context, contextText, question string) (string, error) {
	prompt, err := g.prompts().Answer(g.Language, contextText, question)
	if err != nil {
		return "", genErr("answer", err)
	}
	text, err := g.generateText(ctx, prompt, g.textConfig())
	return text, genErr("answer", err)
}

// SynthesizeSpeech implements Service.
func (g *Gemini) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	prompt, err := g.prompts().Speech(g.Language, text)
	if err != nil {
		return "", genErr("speech", err)
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.Voice},
			},
		},
	}
	cand, err := g.generate(ctx, g.SpeechModel, prompt, cfg)
	if err != nil {
		return "", genErr("speech", err)
	}

	var pcm []byte
	for _, p := range cand.Content.Parts {
		if p.InlineData == nil {
			continue
		}
		if err := checkSpeechMIME(p.InlineData.MIMEType); err != nil {
			return "", genErr("speech", err)
		}
		pcm = append(pcm, p.InlineData.Data...)
	}
	if len(pcm) == 0 {
		return "", genErr("speech", fmt.Errorf("%w: no audio in response", ErrEmptyPayload))
	}
	g.logger().Debug("ai: gemini speech", "model", g.SpeechModel, "bytes", len(pcm))
	return base64.StdEncoding.EncodeToString(pcm), nil
}

func (g *Gemini) generateText(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	cand, err := g.generate(ctx, g.Model, prompt, cfg)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text in response", ErrEmptyPayload)
	}
	g.logger().Debug("ai: gemini text", "model", g.Model, "chars", len(text))
	return text, nil
}

func (g *Gemini) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (*genai.Candidate, error) {
	if g.Client == nil {
		return nil, errors.New("gemini client not configured")
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.Client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", fb.BlockReason)
		}
		return nil, fmt.Errorf("%w: no candidates", ErrEmptyPayload)
	}
	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
	case genai.FinishReasonMaxTokens:
		return nil, errors.New("max tokens")
	case genai.FinishReasonSafety:
		var cats []string
		for _, sr := range c.SafetyRatings {
			if sr.Blocked {
				cats = append(cats, string(sr.Category))
			}
		}
		return nil, fmt.Errorf("blocked by %s", strings.Join(cats, ", "))
	default:
		return nil, fmt.Errorf("unexpected finish reason: %s", c.FinishReason)
	}
	if c.Content == nil {
		return nil, fmt.Errorf("%w: candidate has no content", ErrEmptyPayload)
	}
	return c, nil
}

// checkSpeechMIME accepts "audio/L16;codec=pcm;rate=24000" style types and
// rejects PCM at any other rate.
func checkSpeechMIME(mimeType string) error {
	if mimeType == "" {
		return nil
	}
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fmt.Errorf("audio mime type %q: %w", mimeType, err)
	}
	if !strings.EqualFold(mt, "audio/L16") && !strings.EqualFold(mt, "audio/pcm") {
		return fmt.Errorf("unsupported audio mime type %q", mimeType)
	}
	if r, ok := params["rate"]; ok {
		rate, err := strconv.Atoi(r)
		if err != nil || rate != SpeechSampleRate {
			return fmt.Errorf("unsupported sample rate %q, want %d", r, SpeechSampleRate)
		}
	}
	return nil
}
