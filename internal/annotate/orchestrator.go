package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"poem-annotator/internal/backoff"
	"poem-annotator/internal/cache"
	"poem-annotator/internal/llm"
	"poem-annotator/internal/parser"
	"poem-annotator/internal/poem"
	"poem-annotator/internal/prompt"
)

// Mode reports how a run produced its annotations.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// Options tunes a batch run.
type Options struct {
	// PacingDelay separates successive backend calls.
	PacingDelay time.Duration
	// MaxAttempts per poem; 1 disables retries.
	MaxAttempts    uint
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	CacheTTL       time.Duration
	// SkipAnnotated passes through records that already carry all three
	// sections.
	SkipAnnotated bool
}

func DefaultOptions() Options {
	return Options{
		PacingDelay:    time.Second,
		MaxAttempts:    1,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
		CacheTTL:       24 * time.Hour,
		SkipAnnotated:  true,
	}
}

// Failure records a poem that was dropped from the results.
type Failure struct {
	Index int     `json:"index"`
	ID    poem.ID `json:"id"`
	Title string  `json:"title"`
	Error string  `json:"error"`
}

// Report summarises a run.
type Report struct {
	Mode      Mode      `json:"mode"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Cached    int       `json:"cached"`
	Skipped   int       `json:"skipped"`
	Mocked    int       `json:"mocked"`
	Degraded  int       `json:"degraded"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Orchestrator annotates a batch of poems one at a time, in input order.
type Orchestrator struct {
	backend llm.Backend
	gen     *Generator
	cache   cache.Cache
	log     *slog.Logger
	opts    Options
	sleep   func(context.Context, time.Duration) error
}

// NewOrchestrator wires a run. backend may be nil, in which case every run
// uses mock annotations. c may be nil to disable caching.
func NewOrchestrator(backend llm.Backend, c cache.Cache, log *slog.Logger, opts Options) *Orchestrator {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		backend: backend,
		gen:     NewGenerator(backend, log),
		cache:   c,
		log:     log,
		opts:    opts,
		sleep:   sleepContext,
	}
}

// Run annotates records and returns the results in input order. Poems whose
// backend call fails are logged and left out. If the backend does not pass
// its probe, every poem gets a placeholder annotation instead.
func (o *Orchestrator) Run(ctx context.Context, records []poem.Record) ([]poem.Result, Report) {
	report := Report{Total: len(records)}

	if err := o.available(ctx); err != nil {
		o.log.Warn("backend unavailable, using mock annotations", "err", err)
		report.Mode = ModeMock
		report.Mocked = len(records)
		return Mock(records), report
	}
	report.Mode = ModeLive

	results := make([]poem.Result, 0, len(records))
	called := false
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			o.log.Warn("run cancelled", "processed", i, "total", len(records), "err", err)
			report.Cancelled = true
			break
		}
		log := o.log.With("index", i+1, "total", len(records), "title", r.Title)
		log.Info("processing poem")

		if o.opts.SkipAnnotated {
			if a, ok := r.Existing(); ok {
				log.Debug("poem already annotated")
				results = append(results, poem.NewResult(r, a))
				report.Skipped++
				continue
			}
		}

		key := cache.Key(prompt.Build(r))
		if a, err := o.cache.Get(ctx, key); err != nil {
			log.Warn("cache lookup failed", "err", err)
		} else if a != nil {
			log.Debug("cache hit")
			results = append(results, poem.NewResult(r, *a))
			report.Cached++
			continue
		}

		if called {
			if err := o.sleep(ctx, o.opts.PacingDelay); err != nil {
				log.Warn("run cancelled", "processed", i, "total", len(records), "err", err)
				report.Cancelled = true
				break
			}
		}
		called = true

		a, err := o.generate(ctx, r)
		if err != nil {
			log.Error("annotation failed", "err", err)
			report.Failed++
			report.Failures = append(report.Failures, Failure{Index: i, ID: r.ID, Title: r.Title, Error: err.Error()})
			continue
		}

		if missing := parser.Empty(a); len(missing) > 0 {
			log.Warn("model output missing sections", "missing", missing)
			report.Degraded++
		} else if err := o.cache.Set(ctx, key, a, o.opts.CacheTTL); err != nil {
			log.Warn("cache store failed", "err", err)
		}
		results = append(results, poem.NewResult(r, a))
		report.Succeeded++
	}

	o.log.Info("batch finished",
		"mode", report.Mode,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"cached", report.Cached,
		"skipped", report.Skipped,
		"degraded", report.Degraded,
	)
	return results, report
}

// Mock returns a placeholder result for every record.
func Mock(records []poem.Record) []poem.Result {
	results := make([]poem.Result, 0, len(records))
	for _, r := range records {
		results = append(results, poem.NewResult(r, MockAnnotation(r.Title)))
	}
	return results
}

func (o *Orchestrator) available(ctx context.Context) error {
	if o.backend == nil {
		return fmt.Errorf("%w: no backend configured", llm.ErrUnavailable)
	}
	return o.backend.Probe(ctx)
}

func (o *Orchestrator) generate(ctx context.Context, r poem.Record) (poem.Annotation, error) {
	if o.opts.MaxAttempts <= 1 {
		return o.gen.Generate(ctx, r)
	}
	return retry.DoWithData(
		func() (poem.Annotation, error) {
			return o.gen.Generate(ctx, r)
		},
		retry.Context(ctx),
		retry.Attempts(o.opts.MaxAttempts),
		retry.DelayType(backoff.DelayType(o.opts.RetryBaseDelay, o.opts.RetryMaxDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.log.Warn("retrying annotation", "title", r.Title, "attempt", n+1, "err", err)
		}),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
