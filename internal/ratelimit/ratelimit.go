// Package ratelimit implements the sliding-window counter, short cooldown,
// and distributed lock primitives of spec §4.3, built directly on the KV
// store the way core/rate_limiter.py builds them on redis_client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/kv"
)

// Limiter checks and enforces per-(bot,user,action) sliding-window limits.
type Limiter struct {
	store *kv.Store
}

// New builds a Limiter backed by store.
func New(store *kv.Store) *Limiter {
	return &Limiter{store: store}
}

// Check increments the current window's counter for (bot,user,action) and
// returns a RateLimitedError when the result exceeds limit.
func (l *Limiter) Check(ctx context.Context, botID, userID int64, action string, limit int, window time.Duration) error {
	bucket := time.Now().Unix() / int64(window.Seconds())
	key := fmt.Sprintf("rl:%d:%d:%s:%d", botID, userID, action, bucket)

	count, err := l.store.Incr(ctx, key, window+5*time.Second)
	if err != nil {
		return fmt.Errorf("ratelimit: check: %w", err)
	}
	if count > int64(limit) {
		retryAfter := window - time.Duration(time.Now().Unix()%int64(window.Seconds()))*time.Second
		return &apperr.RateLimitedError{RetryAfter: retryAfter}
	}
	return nil
}

// Cooldown suppresses rapid duplicate actions (e.g. double button taps).
// It returns true when the action may proceed.
func (l *Limiter) Cooldown(ctx context.Context, botID, userID int64, action string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("cd:%d:%d:%s", botID, userID, action)
	ok, err := l.store.SetNX(ctx, key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("ratelimit: cooldown: %w", err)
	}
	return ok, nil
}

// Lock is a held distributed lock; callers must Release it in a finally
// path (spec §4.3).
type Lock struct {
	store *kv.Store
	key   string
}

// AcquireLock attempts to take a named distributed lock with ttl. Returns
// (nil, false, nil) if another holder has it.
func AcquireLock(ctx context.Context, store *kv.Store, name string, ttl time.Duration) (*Lock, bool, error) {
	key := "lock:" + name
	ok, err := store.SetNX(ctx, key, "1", ttl)
	if err != nil {
		return nil, false, fmt.Errorf("ratelimit: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{store: store, key: key}, true, nil
}

// Release drops the lock. Safe to call once; subsequent calls are no-ops.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.store == nil {
		return nil
	}
	store := lk.store
	lk.store = nil
	return store.Del(ctx, lk.key)
}
