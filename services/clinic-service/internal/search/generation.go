package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker remembers the highest search generation seen per key.
type Tracker interface {
	// Observe records gen and returns the highest generation seen, gen included.
	Observe(ctx context.Context, key string, gen int64) (int64, error)
	Latest(ctx context.Context, key string) (int64, error)
}

// MemoryTracker is the single-replica tracker.
type MemoryTracker struct {
	mu     sync.Mutex
	latest map[string]int64
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{latest: map[string]int64{}}
}

func (t *MemoryTracker) Observe(_ context.Context, key string, gen int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen > t.latest[key] {
		t.latest[key] = gen
	}
	return t.latest[key], nil
}

func (t *MemoryTracker) Latest(_ context.Context, key string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[key], nil
}

// RedisTracker shares generations across clinic-service replicas.
type RedisTracker struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

var observeScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local gen = tonumber(ARGV[1])
if gen > cur then
  cur = gen
  redis.call("SET", KEYS[1], cur)
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return cur
`)

func NewRedisTracker(rdb redis.Cmdable, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisTracker{rdb: rdb, ttl: ttl, prefix: "search:gen:"}
}

func (t *RedisTracker) Observe(ctx context.Context, key string, gen int64) (int64, error) {
	return observeScript.Run(ctx, t.rdb, []string{t.prefix + key}, gen, t.ttl.Milliseconds()).Int64()
}

func (t *RedisTracker) Latest(ctx context.Context, key string) (int64, error) {
	n, err := t.rdb.Get(ctx, t.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
