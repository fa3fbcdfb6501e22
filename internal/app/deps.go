package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"poem-annotator/internal/annotate"
	"poem-annotator/internal/cache"
	"poem-annotator/internal/config"
	"poem-annotator/internal/llamacpp"
	"poem-annotator/internal/llm"
	"poem-annotator/internal/logger"
	"poem-annotator/internal/queue"
	"poem-annotator/internal/store"
)

// Needs selects the optional components Build wires up.
type Needs struct {
	Store   bool
	Queue   bool
	Backend bool
}

// Deps bundles common runtime dependencies for services. Backend is nil
// when no backend could be reached; runs then produce mock annotations.
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	Store   store.Store
	Queue   queue.Queue
	Backend llm.Backend
	Cache   cache.Cache

	closers []func() error
}

// Build loads env, config, and the components listed in need.
func Build(ctx context.Context, need Needs) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	return BuildFrom(ctx, cfg, logger.New(cfg.LogLevel, cfg.LogFormat), need)
}

// BuildFrom is Build with configuration and logger already in hand.
func BuildFrom(ctx context.Context, cfg config.Config, log *slog.Logger, need Needs) (Deps, error) {
	deps := Deps{Config: cfg, Log: log}

	if need.Store {
		st, err := buildStore(cfg, log)
		if err != nil {
			return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
		}
		if st != nil {
			deps.Store = st
			deps.closers = append(deps.closers, st.Close)
		}
	}
	if need.Queue {
		q, nc, err := buildQueue(cfg, log)
		if err != nil {
			deps.Close()
			return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
		}
		deps.Queue = q
		deps.closers = append(deps.closers, func() error { nc.Close(); return nil })
	}
	if need.Backend {
		deps.Backend = buildBackend(ctx, cfg, log)
		if c, ok := deps.Backend.(io.Closer); ok {
			deps.closers = append(deps.closers, c.Close)
		}
		deps.Cache = buildCache(cfg, log)
		deps.closers = append(deps.closers, deps.Cache.Close)
	}
	return deps, nil
}

// Close releases every component Build opened, in reverse order.
func (d Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// RunOptions maps configuration onto orchestrator options.
func (d Deps) RunOptions() annotate.Options {
	opts := annotate.DefaultOptions()
	opts.PacingDelay = d.Config.PacingDelay
	opts.MaxAttempts = d.Config.MaxAttempts
	opts.RetryBaseDelay = d.Config.RetryBaseDelay
	opts.CacheTTL = d.Config.CacheTTL
	return opts
}

// Orchestrator returns an orchestrator over the built backend and cache.
func (d Deps) Orchestrator() *annotate.Orchestrator {
	return annotate.NewOrchestrator(d.Backend, d.Cache, d.Log, d.RunOptions())
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, none)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, *nats.Conn, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nc, nil
	default:
		return nil, nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

// buildBackend never fails: an unusable backend is logged and reported as
// nil so callers fall back to mock annotations.
func buildBackend(ctx context.Context, cfg config.Config, log *slog.Logger) llm.Backend {
	switch cfg.BackendProvider {
	case "remote":
		b, err := llm.NewRemoteBackend(llm.RemoteConfig{
			BaseURL:      cfg.RemoteAPIURL,
			Model:        cfg.RemoteModel,
			APIKey:       cfg.RemoteAPIKey,
			Timeout:      cfg.RemoteTimeout,
			ProbeTimeout: cfg.RemoteProbeTimeout,
			Generation: llm.GenerationConfig{
				MaxTokens:   cfg.RemoteMaxTokens,
				Temperature: cfg.Temperature,
				TopP:        cfg.TopP,
				Stop:        cfg.Stop(),
			},
		})
		if err != nil {
			log.Warn("remote backend misconfigured", "err", err)
			return nil
		}
		log.Info("using remote backend", "url", cfg.RemoteAPIURL, "model", cfg.RemoteModel)
		return b
	case "local":
		loader := llamacpp.Loader(llamacpp.Config{BaseURL: cfg.LocalRuntimeURL, ReadyAttempts: 3})
		b, err := llm.NewLocalBackend(ctx, loader, llm.Sampling{
			MaxNewTokens: cfg.LocalMaxNewTokens,
			Temperature:  cfg.Temperature,
			TopP:         cfg.TopP,
		})
		if err != nil {
			log.Warn("local backend unavailable", "err", err)
			return nil
		}
		log.Info("using local backend", "url", cfg.LocalRuntimeURL)
		return b
	case "none", "":
		log.Info("no backend configured")
		return nil
	default:
		log.Warn("unknown BACKEND_PROVIDER; no backend configured", "provider", cfg.BackendProvider)
		return nil
	}
}

func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.CacheProvider != "redis" {
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, caching disabled", "err", err)
		return cache.NewNoOpCache()
	}
	log.Info("using Redis cache", "addr", cfg.RedisAddr)
	return c
}
