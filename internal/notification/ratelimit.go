package notification

import (
	"context"
	"time"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
)

// DefaultRateCaps are hourly caps per category, by priority tier.
func DefaultRateCaps() map[string]int64 {
	return map[string]int64{
		string(event.PriorityCritical): 100,
		string(event.PriorityHigh):     50,
		string(event.PriorityNormal):   20,
		"other":                        10,
	}
}

// RateLimiter counts notifications per (category, clock hour) in the shared
// cache. The cap compared against depends on the priority of the send.
type RateLimiter struct {
	store cache.Store
	caps  map[string]int64
	now   func() time.Time
}

func NewRateLimiter(store cache.Store, caps map[string]int64) *RateLimiter {
	merged := DefaultRateCaps()
	for tier, limit := range caps {
		if limit > 0 {
			merged[tier] = limit
		}
	}
	return &RateLimiter{store: store, caps: merged, now: time.Now}
}

// Cap returns the hourly cap for a priority tier.
func (l *RateLimiter) Cap(priority event.Priority) int64 {
	if limit, ok := l.caps[string(priority)]; ok {
		return limit
	}
	return l.caps["other"]
}

// Key returns the counter key for a category in the hour containing at.
func (l *RateLimiter) Key(category event.Category, at time.Time) string {
	return cache.Key("notify_rate", string(category), at.UTC().Format("2006010215"))
}

// Allow consumes one unit of the category's hourly budget and reports
// whether the send stays within the cap. The counter is incremented
// atomically, so concurrent workers never exceed it together.
func (l *RateLimiter) Allow(ctx context.Context, category event.Category, priority event.Priority) (bool, int64, error) {
	count, err := l.store.Incr(ctx, l.Key(category, l.now()), 2*time.Hour)
	if err != nil {
		return false, 0, err
	}
	return count <= l.Cap(priority), count, nil
}
