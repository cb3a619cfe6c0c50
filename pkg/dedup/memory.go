package dedup

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type memoryGuard struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemory keeps keys in process memory for ttl.
func NewMemory(ttl time.Duration) Guard {
	return &memoryGuard{
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (g *memoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	// Add fails when an unexpired item already exists.
	if err := g.cache.Add(key, struct{}{}, g.ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, key string) error {
	g.cache.Delete(key)
	return nil
}
