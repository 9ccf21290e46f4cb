package cache

import (
	"context"
	"sync"
	"time"

	"github.com/passkeyhq/passkey-backend/internal/domain"
)

// MemoryCache is an in-process ChallengeCache for development and tests.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]*domain.Challenge
}

// NewMemoryCache creates an in-memory challenge cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]*domain.Challenge)}
}

func (c *MemoryCache) Put(ctx context.Context, challenge *domain.Challenge, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	challenge.ExpiresAt = time.Now().Add(ttl)
	c.data[challenge.ID] = challenge

	// Opportunistic sweep keeps the map from accumulating entries for
	// ceremonies the client abandoned.
	for id, ch := range c.data {
		if ch.IsExpired() {
			delete(c.data, id)
		}
	}
	return nil
}

func (c *MemoryCache) Take(ctx context.Context, id string) (*domain.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	challenge, exists := c.data[id]
	if !exists {
		return nil, ErrNotFound
	}
	delete(c.data, id)

	if challenge.IsExpired() {
		return nil, ErrNotFound
	}
	return challenge, nil
}

func (c *MemoryCache) Close() error { return nil }
