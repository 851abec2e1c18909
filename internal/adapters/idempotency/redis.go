// Package idempotency stores submission idempotency keys in Redis so every
// instance of the service shares them.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/dedupe"
	goredis "github.com/redis/go-redis/v9"
)

// Redis is a dedupe.Deduper backed by SET NX with an expiry.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ dedupe.Deduper = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, prefix, ttl), nil
}

// Claim implements dedupe.Deduper.
func (r *Redis) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

// Release implements dedupe.Deduper.
func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
