package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dispatchLockPrefix is the Redis key prefix for campaign dispatch locks.
const dispatchLockPrefix = "dispatch:lock:"

// ErrLockHeld is returned when another worker holds the dispatch lock.
var ErrLockHeld = errors.New("dispatch lock held by another worker")

// releaseLockScript deletes the lock only if the caller still owns it.
// Compare-and-delete prevents a worker whose lock expired from releasing
// a lock re-acquired by someone else.
var releaseLockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// refreshLockScript extends the TTL only if the caller still owns the lock.
var refreshLockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// DispatchLock is a held single-flight lock for one campaign's dispatch
// loop. Exactly one worker per campaign may hold it at a time.
type DispatchLock struct {
	cache *Cache
	key   string
	token string
	ttl   time.Duration
}

// AcquireDispatchLock takes the per-campaign dispatch lock, or returns
// ErrLockHeld if another worker is already dispatching this campaign.
func (c *Cache) AcquireDispatchLock(ctx context.Context, campaignID string, ttl time.Duration) (*DispatchLock, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	key := dispatchLockPrefix + campaignID
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire dispatch lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &DispatchLock{cache: c, key: key, token: token, ttl: ttl}, nil
}

// Refresh extends the lock TTL. Returns false if ownership was lost,
// in which case the dispatch loop must stop.
func (l *DispatchLock) Refresh(ctx context.Context) (bool, error) {
	result, err := refreshLockScript.Run(ctx, l.cache.client,
		[]string{l.key},
		l.token, l.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh dispatch lock: %w", err)
	}
	return result == 1, nil
}

// Release gives up the lock if still owned. Safe to call after expiry.
func (l *DispatchLock) Release(ctx context.Context) error {
	_, err := releaseLockScript.Run(ctx, l.cache.client,
		[]string{l.key},
		l.token,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to release dispatch lock: %w", err)
	}
	return nil
}

// randomToken returns a random hex token identifying a lock owner.
func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
