// Package llm defines the inference backends that turn an annotation prompt
// into raw model text. Two interchangeable implementations exist: a remote
// OpenAI-compatible completion service and an in-process model runtime.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrBackend marks a failed generation call: transport error, timeout,
	// non-success status or a model runtime failure.
	ErrBackend = errors.New("backend invocation failed")

	// ErrUnavailable marks a backend that could not be constructed or did
	// not answer its availability probe.
	ErrUnavailable = errors.New("backend unavailable")

	ErrInvalidConfig = errors.New("invalid backend configuration")
)

// Backend produces raw model output for a prompt.
// Implementations are read-only after construction.
type Backend interface {
	// Generate returns the model's continuation for prompt. Errors wrap
	// ErrBackend.
	Generate(ctx context.Context, prompt string) (string, error)

	// Probe reports whether the backend can serve requests. Errors wrap
	// ErrUnavailable.
	Probe(ctx context.Context) error
}

// GenerationConfig holds the fixed sampling parameters sent with every
// request.
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	// Stop ends generation when produced. Empty disables it.
	Stop string
}

// DefaultGenerationConfig returns the parameters used by the remote
// completion service.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:   1000,
		Temperature: 0.7,
		TopP:        0.9,
		Stop:        "\n\n",
	}
}
