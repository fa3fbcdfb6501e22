package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Sampling configures one bounded generation on a local runtime.
type Sampling struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

// DefaultSampling returns the parameters used for in-process generation.
func DefaultSampling() Sampling {
	return Sampling{
		MaxNewTokens: 800,
		Temperature:  0.7,
		TopP:         0.9,
	}
}

// Runtime is a loaded model and tokenizer pair.
type Runtime interface {
	Encode(ctx context.Context, text string) ([]int, error)
	// Generate returns the input tokens followed by the sampled continuation.
	Generate(ctx context.Context, tokens []int, s Sampling) ([]int, error)
	Decode(ctx context.Context, tokens []int) (string, error)
	Close() error
}

// Loader acquires a Runtime. It is called once per LocalBackend.
type Loader func(ctx context.Context) (Runtime, error)

// LocalBackend runs generation on a Runtime held for the backend's lifetime.
type LocalBackend struct {
	runtime  Runtime
	sampling Sampling

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewLocalBackend loads the runtime. A loader failure is reported as
// ErrUnavailable.
func NewLocalBackend(ctx context.Context, load Loader, s Sampling) (*LocalBackend, error) {
	if load == nil {
		return nil, fmt.Errorf("%w: no model loader configured", ErrUnavailable)
	}
	rt, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load model: %w", ErrUnavailable, err)
	}
	if rt == nil {
		return nil, fmt.Errorf("%w: loader returned no runtime", ErrUnavailable)
	}
	return &LocalBackend{runtime: rt, sampling: s}, nil
}

// Generate decodes only the tokens produced after the prompt.
func (b *LocalBackend) Generate(ctx context.Context, prompt string) (text string, err error) {
	if b.closed.Load() {
		return "", fmt.Errorf("%w: runtime closed", ErrBackend)
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: runtime panic: %v", ErrBackend, r)
		}
	}()

	input, err := b.runtime.Encode(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %w", ErrBackend, err)
	}
	output, err := b.runtime.Generate(ctx, input, b.sampling)
	if err != nil {
		return "", fmt.Errorf("%w: generate: %w", ErrBackend, err)
	}
	if len(output) < len(input) {
		return "", fmt.Errorf("%w: runtime returned %d tokens for a %d-token prompt", ErrBackend, len(output), len(input))
	}
	text, err = b.runtime.Decode(ctx, output[len(input):])
	if err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrBackend, err)
	}
	return text, nil
}

// Probe succeeds while the runtime is held.
func (b *LocalBackend) Probe(context.Context) error {
	if b.closed.Load() {
		return fmt.Errorf("%w: runtime closed", ErrUnavailable)
	}
	return nil
}

// Close releases the runtime. Later calls return the first result.
func (b *LocalBackend) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.closeErr = b.runtime.Close()
	})
	return b.closeErr
}
