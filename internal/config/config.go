package config

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for every binary.
type Config struct {
	// Server
	Port       int    `env:"PORT" envDefault:"8080"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8081"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"

	// Backend
	BackendProvider    string        `env:"BACKEND_PROVIDER" envDefault:"remote"` // "remote", "local" or "none"
	RemoteAPIURL       string        `env:"REMOTE_API_URL" envDefault:"http://localhost:8000/v1/"`
	RemoteModel        string        `env:"REMOTE_MODEL" envDefault:"chatglm2-6b"`
	RemoteAPIKey       string        `env:"REMOTE_API_KEY"`
	RemoteTimeout      time.Duration `env:"REMOTE_TIMEOUT" envDefault:"5m"`
	RemoteProbeTimeout time.Duration `env:"REMOTE_PROBE_TIMEOUT" envDefault:"5s"`
	RemoteMaxTokens    int           `env:"REMOTE_MAX_TOKENS" envDefault:"1000"`
	LocalRuntimeURL    string        `env:"LOCAL_RUNTIME_URL" envDefault:"http://localhost:8090"`
	LocalMaxNewTokens  int           `env:"LOCAL_MAX_NEW_TOKENS" envDefault:"800"`

	// Sampling, shared by both backends
	Temperature float64 `env:"GEN_TEMPERATURE" envDefault:"0.7"`
	TopP        float64 `env:"GEN_TOP_P" envDefault:"0.9"`
	// GenStop is written with Go escapes, e.g. `\n\n`.
	GenStop string `env:"GEN_STOP" envDefault:"\n\n"`

	// Run
	PacingDelay    time.Duration `env:"PACING_DELAY" envDefault:"1s"`
	MaxAttempts    uint          `env:"MAX_ATTEMPTS" envDefault:"1"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`

	// Cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"none"` // "redis" or "none"
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"none"` // "postgres" or "none"
	DBURL         string `env:"DB_URL"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"`
	QueueURL      string `env:"QUEUE_URL" envDefault:"nats://localhost:4222"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// Stop returns GenStop with escape sequences resolved. An empty value
// disables the stop sequence.
func (c Config) Stop() string {
	s, err := strconv.Unquote(`"` + c.GenStop + `"`)
	if err != nil {
		return c.GenStop
	}
	return s
}
