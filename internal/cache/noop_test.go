package cache

import (
	"context"
	"testing"
	"time"

	"poem-annotator/internal/poem"
)

// TestNoOpCache verifies that NoOpCache never returns a hit.
func TestNoOpCache(t *testing.T) {
	var c Cache = NewNoOpCache()
	ctx := context.Background()

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil result (cache miss), got %v", got)
	}

	if err := c.Set(ctx, "k", poem.Annotation{Translation: "译文"}, time.Hour); err != nil {
		t.Errorf("Expected no error on Set, got %v", err)
	}

	got, err = c.Get(ctx, "k")
	if err != nil || got != nil {
		t.Errorf("Expected miss after Set, got %v, %v", got, err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Expected no error on Close, got %v", err)
	}
}

func TestKey(t *testing.T) {
	a := Key("prompt one")
	if a != Key("prompt one") {
		t.Error("expected stable key")
	}
	if a == Key("prompt two") {
		t.Error("expected different prompts to give different keys")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
}
