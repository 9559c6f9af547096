package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// Generator is a generative model client using the OpenAI-compatible
// chat completions API. Responses are non-streaming.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	user        string
	purpose     string
	maxRetries  uint64
	logger      *zap.Logger
}

// GeneratorConfig holds the generative model settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	User        string
	MaxRetries  uint64 // 0 disables retries
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat completions client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		user:        cfg.User,
		purpose:     "generate",
		maxRetries:  cfg.MaxRetries,
		logger:      cfg.Logger,
	}
}

// WithPurpose returns a shallow copy labelled for metrics. The pipeline
// calls the same model for query expansion and answer synthesis; the
// purpose label keeps their request counts apart.
func (g *Generator) WithPurpose(purpose string) *Generator {
	cp := *g
	cp.purpose = purpose
	return &cp
}

// Generate implements domain.Generator: sends the prompt as a single user
// message and returns the first choice verbatim.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		User:        g.user,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	start := time.Now()

	var resp openai.ChatCompletionResponse
	err := g.withRetry(ctx, func(ctx context.Context) error {
		var doErr error
		resp, doErr = g.client.CreateChatCompletion(ctx, req)
		return doErr
	})

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, g.purpose, "error").Inc()
		return "", parseAPIError("generation", err, domain.ErrGenerationFailure)
	}

	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, g.purpose, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationFailure)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, g.purpose, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.model, g.purpose).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	return resp.Choices[0].Message.Content, nil
}

func (g *Generator) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.maxRetries == 0 {
		return fn(ctx)
	}
	b := retry.NewFibonacci(500 * time.Millisecond)
	return retry.Do(ctx, retry.WithMaxRetries(g.maxRetries, b), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryableAPIError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
