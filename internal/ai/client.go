// Package ai turns article text into narration-ready extracts using a language model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feed-narrator/config"
	"feed-narrator/internal/models"

	"github.com/sirupsen/logrus"
)

// ErrSummarizationFailed wraps every reason an extract could not be produced.
var ErrSummarizationFailed = errors.New("summarization failed")

// GenerateOptions are the sampling settings passed to a backend.
type GenerateOptions struct {
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Backend sends a single prompt to a model and returns its raw reply.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Pinger is implemented by backends that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	Generate        GenerateOptions
	Timeout         time.Duration
	MaxContentChars int
}

// Client produces extracts through a Backend.
type Client struct {
	backend Backend
	opts    Options
	log     logrus.FieldLogger
}

// New wraps backend in a Client.
func New(backend Backend, opts Options, log logrus.FieldLogger) *Client {
	return &Client{
		backend: backend,
		opts:    opts,
		log:     log,
	}
}

// NewClient builds a Client for the configured provider.
func NewClient(ctx context.Context, cfg config.LLMConfig, log logrus.FieldLogger) (*Client, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Provider {
	case "", "ollama":
		backend, err = NewOllamaBackend(cfg.Endpoint, cfg.Timeout)
	case "openai":
		backend = NewOpenAIBackend(cfg.APIKey, cfg.Endpoint)
	case "claude":
		backend = NewClaudeBackend(cfg.APIKey, cfg.Endpoint)
	case "gemini":
		backend, err = NewGeminiBackend(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return New(backend, Options{
		Generate: GenerateOptions{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		},
		Timeout:         cfg.Timeout,
		MaxContentChars: cfg.MaxContentChars,
	}, log), nil
}

// Provider names the backend in use.
func (c *Client) Provider() string {
	return c.backend.Name()
}

// Summarize asks the model for an extract of content. It never returns an error:
// failures are reported through the result.
func (c *Client) Summarize(ctx context.Context, content *models.ArticleContent) models.ExtractResult {
	candidate := content.Candidate
	prompt := BuildExtractPrompt(candidate.Title, content.BodyText, c.opts.MaxContentChars)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	log := c.log.WithFields(logrus.Fields{
		"provider": c.backend.Name(),
		"model":    c.opts.Generate.Model,
		"title":    candidate.Title,
	})
	log.Debug("requesting extract")

	start := time.Now()
	reply, err := c.backend.Generate(ctx, prompt, c.opts.Generate)
	if err != nil {
		return models.Failed(candidate, models.StageSummarize, fmt.Errorf("%w: %w", ErrSummarizationFailed, err))
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return models.Failed(candidate, models.StageSummarize, fmt.Errorf("%w: empty reply", ErrSummarizationFailed))
	}

	log.WithFields(logrus.Fields{
		"words":   models.CountWords(reply),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("extract generated")
	return models.Succeeded(candidate, reply)
}

// Ping checks that the backend is reachable. Backends without a cheap check report nil.
func (c *Client) Ping(ctx context.Context) error {
	p, ok := c.backend.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
