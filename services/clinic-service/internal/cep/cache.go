package cep

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultCacheTTL = 24 * time.Hour

type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, cep string) (Address, bool, error) {
	raw, err := c.rdb.Get(ctx, "cep:"+cep).Bytes()
	if errors.Is(err, redis.Nil) {
		return Address{}, false, nil
	}
	if err != nil {
		return Address{}, false, err
	}
	var addr Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return Address{}, false, err
	}
	return addr, true, nil
}

func (c *RedisCache) Set(ctx context.Context, cep string, addr Address) error {
	raw, err := json.Marshal(addr)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, "cep:"+cep, raw, c.ttl).Err()
}
