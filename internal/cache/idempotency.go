package cache

import (
	"context"
	"strings"
	"time"
)

// Claimer marks side effects as applied for a given envelope so that a
// retried attempt can skip them.
type Claimer struct {
	store Store
	ttl   time.Duration
}

func NewClaimer(store Store, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Claimer{store: store, ttl: ttl}
}

// Claim returns true the first time it is called for the given key parts.
func (c *Claimer) Claim(ctx context.Context, parts ...string) (bool, error) {
	return c.store.SetNX(ctx, Key(parts...), "1", c.ttl)
}

// Release undoes a claim whose side effect could not be applied.
func (c *Claimer) Release(ctx context.Context, parts ...string) error {
	return c.store.Del(ctx, Key(parts...))
}

// Key joins non-empty parts with ':'.
func Key(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, ":")
}
