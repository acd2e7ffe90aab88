package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
)

// Locker hands out advisory locks so overlapping runs (poller plus a manual
// trigger) never evaluate and apply the same schedule at once.
type Locker interface {
	// TryLock returns ok=false without blocking when the key is held.
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

func lockKey(scheduleID string) string {
	return "schedule:" + scheduleID
}

// MemoryLocker only coordinates callers inside this process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (m *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held[key] {
		return nil, false, nil
	}
	m.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the lock only if it still carries our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares locks between processes. Locks expire after ttl so a
// crashed holder cannot wedge a schedule.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, prefix: "fieldconfirm:lock:"}
}

func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	fullKey := r.prefix + key
	owner := uuid.NewString()

	ok, err := r.client.SetNX(ctx, fullKey, owner, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock error: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.client, []string{fullKey}, owner).Err(); err != nil {
			log.Warnf("failed to release lock %s: %v", fullKey, err)
		}
	}, true, nil
}
