package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const fareKeyPrefix = "flight:"

// RedisFareCache stores quotes as JSON with a per-entry expiry
type RedisFareCache struct {
	rdb *redis.Client
}

// NewRedisFareCache creates a new Redis-backed fare cache
func NewRedisFareCache(rdb *redis.Client) repository.FareCache {
	return &RedisFareCache{rdb: rdb}
}

// Get returns nil on a miss
func (c *RedisFareCache) Get(ctx context.Context, key string) (*entity.FareQuote, error) {
	raw, err := c.rdb.Get(ctx, fareKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fare %s: %w", key, err)
	}

	var quote entity.FareQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, fmt.Errorf("decode fare %s: %w", key, err)
	}
	return &quote, nil
}

// Put overwrites key with quote for ttl
func (c *RedisFareCache) Put(ctx context.Context, key string, quote entity.FareQuote, ttl time.Duration) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("encode fare %s: %w", key, err)
	}
	return c.rdb.Set(ctx, fareKeyPrefix+key, data, ttl).Err()
}
