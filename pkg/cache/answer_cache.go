// Package cache stores final answers so repeated questions about the same
// document skip the pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coa:answer:"

type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, answer string) error
}

// Fingerprint identifies a (document, query, pipeline setup) combination.
// Any change to the parts yields a different key.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type RedisAnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisAnswerCache(rdb *redis.Client, ttl time.Duration) *RedisAnswerCache {
	return &RedisAnswerCache{rdb: rdb, ttl: ttl}
}

func (c *RedisAnswerCache) Get(ctx context.Context, key string) (string, bool, error) {
	answer, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get answer: %w", err)
	}
	return answer, true, nil
}

func (c *RedisAnswerCache) Set(ctx context.Context, key, answer string) error {
	if err := c.rdb.Set(ctx, keyPrefix+key, answer, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer: %w", err)
	}
	return nil
}

// NopAnswerCache never hits. Used when Redis is not configured.
type NopAnswerCache struct{}

func (NopAnswerCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (NopAnswerCache) Set(ctx context.Context, key, answer string) error { return nil }
