package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feed-narrator/config"

	ollama "github.com/ollama/ollama/api"
)

// generatePath is the suffix stripped from configured endpoints to get the server root.
const generatePath = "/api/generate"

// OllamaBackend talks to an Ollama server through its API client.
type OllamaBackend struct {
	host   string
	client *ollama.Client
}

// NewOllamaBackend creates a backend for endpoint, which defaults to the local server.
// Both the server root and its generate URL are accepted.
func NewOllamaBackend(endpoint string, timeout time.Duration) (*OllamaBackend, error) {
	if endpoint == "" {
		endpoint = config.DefaultOllamaEndpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse ollama endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse ollama endpoint: %q is not an absolute URL", endpoint)
	}
	base.Path = strings.TrimSuffix(strings.TrimSuffix(base.Path, "/"), generatePath)
	base.RawQuery = ""

	return &OllamaBackend{
		host:   base.Host,
		client: ollama.NewClient(base, &http.Client{Timeout: timeout}),
	}, nil
}

func (b *OllamaBackend) Name() string { return "ollama" }

// Generate sends a non-streaming generate request.
func (b *OllamaBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	stream := false
	req := &ollama.GenerateRequest{
		Model:  opts.Model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"top_p":       opts.TopP,
		},
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}

	var reply strings.Builder
	err := b.client.Generate(ctx, req, func(resp ollama.GenerateResponse) error {
		reply.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return reply.String(), nil
}

// Ping lists local models, which succeeds whenever the server is up.
func (b *OllamaBackend) Ping(ctx context.Context) error {
	if _, err := b.client.List(ctx); err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", b.host, err)
	}
	return nil
}
