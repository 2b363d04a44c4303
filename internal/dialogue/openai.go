package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the chat model used for dialogue.
	DefaultModel = openai.GPT4o

	placeholderKey = "your-openai-api-key-here"
	maxTokens      = 500
	temperature    = 0.8
)

// ValidKey reports whether key looks like a configured API key rather than
// an empty or template value.
func ValidKey(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && !strings.Contains(key, placeholderKey)
}

// OpenAIGenerator writes scripts with an OpenAI chat model.
type OpenAIGenerator struct {
	client *openai.Client
	keyOK  bool
	model  string
	logger *slog.Logger
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	model   string
	baseURL string
}

// WithModel selects the chat model.
func WithModel(model string) OpenAIOption {
	return func(o *openAIOptions) { o.model = model }
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = u }
}

// NewOpenAIGenerator returns a generator using apiKey. A missing or
// placeholder key is not an error here; Generate reports it per call.
func NewOpenAIGenerator(apiKey string, logger *slog.Logger, opts ...OpenAIOption) *OpenAIGenerator {
	o := openAIOptions{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		keyOK:  ValidKey(apiKey),
		model:  o.model,
		logger: logger.With("subsystem", "dialogue", "backend", "openai"),
	}
}

// Client returns the underlying API client so other OpenAI features can
// share its configuration.
func (g *OpenAIGenerator) Client() *openai.Client { return g.client }

// Generate asks the model for a script and filters the response down to
// spoken lines.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Script, error) {
	if !g.keyOK {
		return Script{}, &GenerationError{Cause: MissingCredential}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Script{}, &GenerationError{Cause: NetworkOrService, Err: fmt.Errorf("chat completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return Script{}, &GenerationError{Cause: NetworkOrService, Err: ErrEmptyScript}
	}

	lines := Parse(resp.Choices[0].Message.Content)
	if len(lines) == 0 {
		return Script{}, &GenerationError{Cause: NetworkOrService, Err: ErrEmptyScript}
	}
	g.logger.Debug("script generated", "persona", req.Persona, "lines", len(lines),
		"tokens", resp.Usage.TotalTokens)
	return newScript(lines, SourceGenerated), nil
}
