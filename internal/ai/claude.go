package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeBackend uses the Anthropic Messages API.
type ClaudeBackend struct {
	client *anthropic.Client
}

// NewClaudeBackend creates a backend. An empty apiKey falls back to ANTHROPIC_API_KEY.
func NewClaudeBackend(apiKey, baseURL string) *ClaudeBackend {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(opts...)
	return &ClaudeBackend{client: &client}
}

func (b *ClaudeBackend) Name() string { return "claude" }

func (b *ClaudeBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	message, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(opts.Model),
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(float64(opts.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.AsText().Text)
	}
	return sb.String(), nil
}
