// Package llamacpp provides an llm.Runtime backed by a llama.cpp server's
// native tokenize, completion and detokenize endpoints.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"poem-annotator/internal/llm"
)

// Config locates the server and bounds the wait for its model to load.
type Config struct {
	BaseURL string
	// ReadyAttempts is how many health checks Load makes before giving up.
	ReadyAttempts uint
	ReadyDelay    time.Duration
}

// Runtime talks to one llama.cpp server. Requests carry no client-side
// timeout; callers bound them through the context.
type Runtime struct {
	baseURL string
	http    *http.Client
}

// Load waits for the server to report healthy and returns a Runtime.
func Load(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llamacpp: base url required")
	}
	if cfg.ReadyAttempts == 0 {
		cfg.ReadyAttempts = 1
	}
	if cfg.ReadyDelay <= 0 {
		cfg.ReadyDelay = time.Second
	}
	rt := &Runtime{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
	}
	probe := &http.Client{Timeout: 5 * time.Second}

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rt.baseURL+"/health", nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := probe.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(cfg.ReadyAttempts),
		retry.Delay(cfg.ReadyDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: server not ready: %w", err)
	}
	return rt, nil
}

// Loader adapts Load to llm.Loader.
func Loader(cfg Config) llm.Loader {
	return func(ctx context.Context) (llm.Runtime, error) {
		rt, err := Load(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return rt, nil
	}
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

type detokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

type completionRequest struct {
	Prompt       []int   `json:"prompt"`
	NPredict     int     `json:"n_predict"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	Stream       bool    `json:"stream"`
	ReturnTokens bool    `json:"return_tokens"`
	CachePrompt  bool    `json:"cache_prompt"`
}

type completionResponse struct {
	Content string `json:"content"`
	Tokens  []int  `json:"tokens"`
}

func (r *Runtime) Encode(ctx context.Context, text string) ([]int, error) {
	return r.tokenize(ctx, text, true)
}

// Generate samples a continuation and returns it appended to tokens.
func (r *Runtime) Generate(ctx context.Context, tokens []int, s llm.Sampling) ([]int, error) {
	var out completionResponse
	err := r.post(ctx, "/completion", completionRequest{
		Prompt:       tokens,
		NPredict:     s.MaxNewTokens,
		Temperature:  s.Temperature,
		TopP:         s.TopP,
		ReturnTokens: true,
		CachePrompt:  true,
	}, &out)
	if err != nil {
		return nil, err
	}
	generated := out.Tokens
	if len(generated) == 0 && out.Content != "" {
		// Older servers ignore return_tokens.
		if generated, err = r.tokenize(ctx, out.Content, false); err != nil {
			return nil, err
		}
	}
	full := make([]int, 0, len(tokens)+len(generated))
	full = append(full, tokens...)
	return append(full, generated...), nil
}

func (r *Runtime) Decode(ctx context.Context, tokens []int) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	var out detokenizeResponse
	if err := r.post(ctx, "/detokenize", detokenizeRequest{Tokens: tokens}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (r *Runtime) Close() error {
	r.http.CloseIdleConnections()
	return nil
}

func (r *Runtime) tokenize(ctx context.Context, text string, addSpecial bool) ([]int, error) {
	var out tokenizeResponse
	if err := r.post(ctx, "/tokenize", tokenizeRequest{Content: text, AddSpecial: addSpecial}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (r *Runtime) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("llamacpp %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("llamacpp %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llamacpp %s: decode response: %w", path, err)
	}
	return nil
}
