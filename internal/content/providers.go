package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"

	"github.com/watzon/clipcast/internal/config"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultOpenAIModel = "gpt-4o-mini"
)

// New builds the generator described by cfg.
func New(ctx context.Context, cfg config.ContentConfig) (*Generator, error) {
	var text TextModel
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		text = g
	case "openai":
		text = NewOpenAI(cfg.APIKey, cfg.Model)
	case "", "none":
		text = Echo{}
	default:
		return nil, fmt.Errorf("unknown content provider %q", cfg.Provider)
	}

	var media MediaSource = NoMedia{}
	if cfg.MediaEndpoint != "" {
		media = NewEndpointMedia(cfg.MediaEndpoint, &http.Client{Timeout: cfg.Timeout})
	}

	return NewGenerator(text, media, Options{
		Timeout:       cfg.Timeout,
		RatePerMinute: cfg.RatePerMinute,
	}), nil
}

// Gemini completes text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini text model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Complete implements TextModel.
func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if result == nil {
		return "", errors.New("gemini: empty response")
	}
	return result.Text(), nil
}

// OpenAI completes text with the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI text model. Extra options are passed to the client.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

// Complete implements TextModel.
func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return completion.Choices[0].Message.Content, nil
}

// Echo is the text model used when no provider is configured.
// It fails every call, so Enhance keeps the prompt and captions stay empty.
type Echo struct{}

// Complete implements TextModel.
func (Echo) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("no text provider configured")
}

// NoMedia is the media source used when no endpoint is configured.
type NoMedia struct{}

// Generate implements MediaSource.
func (NoMedia) Generate(context.Context, string) (Handle, error) {
	return Handle{}, fmt.Errorf("%w: no media endpoint configured", ErrContentService)
}
