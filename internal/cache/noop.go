package cache

import (
	"context"
	"time"

	"poem-annotator/internal/poem"
)

// NoOpCache is a cache implementation that does nothing.
// Used when caching is disabled or Redis is unreachable: every lookup is a
// miss and every store succeeds.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) Get(ctx context.Context, key string) (*poem.Annotation, error) {
	return nil, nil
}

func (c *NoOpCache) Set(ctx context.Context, key string, a poem.Annotation, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
