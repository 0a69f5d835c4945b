package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAI defaults.
const (
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultOpenAISpeechModel = "gpt-4o-mini-tts"
	DefaultOpenAIVoice       = "alloy"

	oaiFinishReasonStop          = "stop"
	oaiFinishReasonLength        = "length"
	oaiFinishReasonContentFilter = "content_filter"

	// speech responses above this size are rejected (about ten minutes at
	// 24 kHz)
	oaiMaxSpeechBytes = 32 << 20
)

var _ Service = (*OpenAI)(nil)

// OpenAI implements Service with the OpenAI chat and speech endpoints, or
// any server compatible with them.
type OpenAI struct {
	Client *openai.Client

	Model       string
	SpeechModel string
	Voice       string

	// Language selects the prompt language. Defaults to DefaultLanguage.
	Language string

	// Prompts defaults to DefaultPrompts().
	Prompts *Prompts

	Logger *slog.Logger
}

// NewOpenAI returns an OpenAI service with the default models and voice.
// baseURL may be empty.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{
		Client:      &client,
		Model:       DefaultOpenAIModel,
		SpeechModel: DefaultOpenAISpeechModel,
		Voice:       DefaultOpenAIVoice,
	}
}

func (o *OpenAI) prompts() *Prompts {
	if o.Prompts == nil {
		o.Prompts = DefaultPrompts()
	}
	return o.Prompts
}

func (o *OpenAI) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *OpenAI) chatParams(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.prompts().System(o.Language)),
			openai.UserMessage(prompt),
		},
	}
}

// GenerateScript implements Service.
func (o *OpenAI) GenerateScript(ctx context.Context, req ScriptRequest) (string, error) {
	prompt, err := o.prompts().Script(o.Language, req)
	if err != nil {
		return "", genErr("script", err)
	}
	text, err := o.complete(ctx, o.chatParams(prompt))
	return text, genErr("script", err)
}

// Summarize implements Service.
func (o *OpenAI) Summarize(ctx context.Context, text string) (*Summary, error) {
	prompt, err := o.prompts().Summary(o.Language, text)
	if err != nil {
		return nil, genErr("summary", err)
	}
	params := o.chatParams(prompt)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        "summary",
				Description: param.NewOpt("A titled summary of the text"),
				Schema:      openAIStrictSchema(summarySchema),
				Strict:      param.NewOpt(true),
			},
		},
	}
	raw, err := o.complete(ctx, params)
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
func (o *OpenAI) Answer(ctx context.Context, contextText, question string) (string, error) {
	prompt, err := o.prompts().Answer(o.Language, contextText, question)
	if err != nil {
		return "", genErr("answer", err)
	}
	text, err := o.complete(ctx, o.chatParams(prompt))
	return text, genErr("answer", err)
}

// SynthesizeSpeech implements Service. The endpoint's "pcm" format is raw
// 24 kHz 16-bit little-endian mono.
func (o *OpenAI) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	if o.Client == nil {
		return "", genErr("speech", errors.New("openai client not configured"))
	}
	resp, err := o.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(o.SpeechModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(o.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return "", genErr("speech", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, oaiMaxSpeechBytes+1))
	if err != nil {
		return "", genErr("speech", fmt.Errorf("read audio: %w", err))
	}
	if len(data) > oaiMaxSpeechBytes {
		return "", genErr("speech", fmt.Errorf("audio exceeds %d bytes", oaiMaxSpeechBytes))
	}
	if len(data) == 0 {
		return "", genErr("speech", fmt.Errorf("%w: no audio in response", ErrEmptyPayload))
	}
	o.logger().Debug("ai: openai speech", "model", o.SpeechModel, "bytes", len(data))
	return base64.StdEncoding.EncodeToString(data), nil
}

func (o *OpenAI) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if o.Client == nil {
		return "", errors.New("openai client not configured")
	}
	resp, err := o.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyPayload)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("blocked: %s", choice.Message.Refusal)
	}
	switch choice.FinishReason {
	case oaiFinishReasonStop:
	case oaiFinishReasonLength:
		return "", errors.New("max tokens")
	case oaiFinishReasonContentFilter:
		return "", errors.New("blocked by content filter")
	default:
		return "", fmt.Errorf("unexpected finish reason: %s", choice.FinishReason)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: no content", ErrEmptyPayload)
	}
	o.logger().Debug("ai: openai text", "model", o.Model, "chars", len(text))
	return text, nil
}
