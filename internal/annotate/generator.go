// Package annotate runs the annotation pipeline: prompt construction,
// backend invocation and section parsing for one poem, and sequential batch
// orchestration over many.
package annotate

import (
	"context"
	"fmt"
	"log/slog"

	"poem-annotator/internal/llm"
	"poem-annotator/internal/parser"
	"poem-annotator/internal/poem"
	"poem-annotator/internal/prompt"
)

// Generator annotates a single poem. It never retries.
type Generator struct {
	backend llm.Backend
	log     *slog.Logger
}

// NewGenerator returns a Generator over backend. A nil log uses
// slog.Default.
func NewGenerator(backend llm.Backend, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{backend: backend, log: log}
}

// Generate builds the prompt, calls the backend and parses its output.
// Backend errors are returned unchanged.
func (g *Generator) Generate(ctx context.Context, r poem.Record) (poem.Annotation, error) {
	if g.backend == nil {
		return poem.Annotation{}, fmt.Errorf("%w: no backend configured", llm.ErrBackend)
	}
	raw, err := g.backend.Generate(ctx, prompt.Build(r))
	if err != nil {
		return poem.Annotation{}, err
	}
	if absent := parser.Missing(raw); len(absent) > 0 {
		g.log.Warn("model output lacks section markers", "title", r.Title, "absent", absent)
	}
	return parser.Parse(raw), nil
}

// MockAnnotation is the placeholder used when no backend is reachable.
func MockAnnotation(title string) poem.Annotation {
	return poem.Annotation{
		Translation:  fmt.Sprintf("这里是《%s》的模拟白话翻译", title),
		Background:   fmt.Sprintf("这里是《%s》的模拟创作背景", title),
		Appreciation: fmt.Sprintf("这里是《%s》的模拟赏析解读", title),
	}
}
