package msgraph

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Expiring pairs a cached value with the instant it stops being usable.
type Expiring[T any] struct {
	Value  T
	Expiry time.Time
}

func (e Expiring[T]) Valid(now time.Time) bool {
	return !e.Expiry.IsZero() && now.Before(e.Expiry)
}

// expiringCache is process-wide state: one value, refreshed on expiry.
// Concurrent misses collapse into a single refresh.
type expiringCache[T any] struct {
	mu    sync.Mutex
	entry Expiring[T]
	group singleflight.Group
	now   func() time.Time
}

func newExpiringCache[T any](now func() time.Time) *expiringCache[T] {
	return &expiringCache[T]{now: now}
}

func (c *expiringCache[T]) get(ctx context.Context, fetch func(ctx context.Context) (Expiring[T], error)) (T, error) {
	c.mu.Lock()
	entry := c.entry
	c.mu.Unlock()
	if entry.Valid(c.now()) {
		return entry.Value, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entry = fresh
		c.mu.Unlock()
		return fresh.Value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *expiringCache[T]) invalidate() {
	c.mu.Lock()
	c.entry = Expiring[T]{}
	c.mu.Unlock()
}
