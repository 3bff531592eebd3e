// Package kv adapts Redis (via go-redis/v9) into the narrow set of
// primitives the rest of the system needs: atomic counters, TTL keys,
// SETNX locks, and pub/sub — grounded on the connection-pool and
// pipeline usage shown in the example pack's tg-digest-bot collector.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a *redis.Client with the operations the KV-dependent
// subsystems (rate limiter, locks, sale dedup, update dedup, task queue) use.
type Store struct {
	client *redis.Client
}

// Config configures the underlying redis.Client connection pool.
type Config struct {
	URL            string
	MaxConnections int
}

// New parses URL and opens a pooled Redis client.
func New(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.DialTimeout = 5 * time.Second
	client := redis.NewClient(opts)
	return &Store{client: client}, nil
}

// Ping checks connectivity within the given deadline.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases pooled connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// Incr atomically increments key and sets its TTL in the same
// transaction. The TTL is reset on every call, not only when the key is
// created. Mirrors core/rate_limiter.py's INCR+EXPIRE pipeline.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv: incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// SetNX sets key to value with ttl only if it does not already exist.
// Returns true if the key was set (lock/cooldown acquired).
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kv: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Exists reports whether key is currently set.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Get returns the string value of key, or "" if absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

// SetEx sets key to value with a TTL, overwriting any prior value.
func (s *Store) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: setex %s: %w", key, err)
	}
	return nil
}

// Del deletes one or more keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv: del: %w", err)
	}
	return nil
}

// IncrBy atomically adds delta to key's integer value, refreshing ttl when
// provided (ttl<=0 leaves any existing TTL untouched).
func (s *Store) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv: incrby %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Publish publishes message on channel (used for cache-invalidation
// broadcasts such as per-bot trigger-snapshot refreshes, spec §9).
func (s *Store) Publish(ctx context.Context, channel, message string) error {
	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("kv: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a subscription whose Channel() yields messages.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, channel)
}

// LPush pushes value onto the head of a list (used as a queue transport).
func (s *Store) LPush(ctx context.Context, key string, value string) error {
	if err := s.client.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("kv: lpush %s: %w", key, err)
	}
	return nil
}

// BRPop blocks (up to timeout) for a value at the tail of key, returning
// ("", nil) on timeout so callers can loop and check ctx.Done().
func (s *Store) BRPop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	res, err := s.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("kv: brpop %s: %w", key, err)
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// ZAdd adds member with score to a sorted set (used by the scheduler for
// time-ordered due-task sweeps).
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("kv: zadd %s: %w", key, err)
	}
	return nil
}

// ZRangeByScoreDue returns members with score <= maxScore, ascending.
func (s *Store) ZRangeByScoreDue(ctx context.Context, key string, maxScore float64, limit int64) ([]string, error) {
	res, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", maxScore),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: zrangebyscore %s: %w", key, err)
	}
	return res, nil
}

// ZRem removes member from a sorted set.
func (s *Store) ZRem(ctx context.Context, key, member string) error {
	if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("kv: zrem %s: %w", key, err)
	}
	return nil
}
