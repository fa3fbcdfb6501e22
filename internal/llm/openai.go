package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultRemoteURL     = "http://localhost:8000/v1/"
	defaultRemoteModel   = "chatglm2-6b"
	defaultRemoteTimeout = 5 * time.Minute
	defaultProbeTimeout  = 5 * time.Second
)

// RemoteConfig configures a RemoteBackend.
type RemoteConfig struct {
	// BaseURL is the OpenAI-compatible API root, e.g. http://localhost:8000/v1/.
	BaseURL string
	Model   string
	// APIKey is optional; self-hosted servers usually ignore it.
	APIKey       string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Generation   GenerationConfig
}

// DefaultRemoteConfig targets a completion server on localhost:8000.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:      defaultRemoteURL,
		Model:        defaultRemoteModel,
		Timeout:      defaultRemoteTimeout,
		ProbeTimeout: defaultProbeTimeout,
		Generation:   DefaultGenerationConfig(),
	}
}

// RemoteBackend calls the text completion endpoint of an OpenAI-compatible
// service (vLLM, llama.cpp server, FastChat and similar).
type RemoteBackend struct {
	cfg    RemoteConfig
	client *openai.Client
}

// NewRemoteBackend builds a backend for cfg. It does not contact the service;
// use Probe for that.
func NewRemoteBackend(cfg RemoteConfig) (*RemoteBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retry policy belongs to the orchestrator.
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	cli := openai.NewClient(opts...)
	return &RemoteBackend{
		cfg:    cfg,
		client: &cli,
	}, nil
}

func (b *RemoteBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if b == nil || b.client == nil {
		return "", fmt.Errorf("%w: nil remote client", ErrBackend)
	}
	reqCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	gen := b.cfg.Generation
	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(b.cfg.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(prompt),
		},
		Temperature: openai.Float(gen.Temperature),
		TopP:        openai.Float(gen.TopP),
	}
	if gen.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(gen.MaxTokens))
	}
	if gen.Stop != "" {
		params.Stop = openai.CompletionNewParamsStopUnion{
			OfString: openai.String(gen.Stop),
		}
	}

	resp, err := b.client.Completions.New(reqCtx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status %d: %w", ErrBackend, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrBackend)
	}
	return resp.Choices[0].Text, nil
}

// Probe lists the served models with a short timeout.
func (b *RemoteBackend) Probe(ctx context.Context) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("%w: nil remote client", ErrUnavailable)
	}
	probeCtx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()
	if _, err := b.client.Models.List(probeCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
