package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend uses the chat completion API of any OpenAI-compatible server.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend. An empty baseURL keeps the library default.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

// Generate sends the prompt as a single user message.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
