package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"poem-annotator/internal/poem"
)

// Cache stores generated annotations so repeated runs skip the backend.
type Cache interface {
	// Get returns the cached annotation for key, or nil on a miss.
	Get(ctx context.Context, key string) (*poem.Annotation, error)

	// Set stores an annotation with TTL.
	Set(ctx context.Context, key string, a poem.Annotation, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// Key derives the cache key from the rendered prompt, so any change to the
// poem or the template misses.
func Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
