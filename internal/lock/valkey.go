// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix namespaces lock keys in Valkey to avoid collisions with the cache.
	keyPrefix = "lock:"

	// DefaultRetryInterval is how often a blocked Acquire polls Valkey.
	DefaultRetryInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only if it still holds the caller's token,
// so a holder whose lease expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on Valkey with SET NX PX. It works across
// processes and hosts sharing the same Valkey instance.
type RedisLocker struct {
	client *redis.Client
	retry  time.Duration
}

// NewRedisLocker creates a locker backed by the given Valkey client.
// A zero retry uses DefaultRetryInterval.
func NewRedisLocker(client *redis.Client, retry time.Duration) *RedisLocker {
	if retry == 0 {
		retry = DefaultRetryInterval
	}
	return &RedisLocker{client: client, retry: retry}
}

// Acquire polls until key is free or opts.Block elapses.
func (l *RedisLocker) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if err := opts.validate(key); err != nil {
		return nil, err
	}

	lease := newLease(key, l.release)
	deadline := time.Now().Add(opts.Block)

	for {
		ok, err := l.client.SetNX(ctx, keyPrefix+key, lease.token, opts.Lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return lease, nil
		}

		wait, ok := waitTimeout(deadline, l.retry)
		if !ok {
			return nil, timeoutError(key)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLeaseExpired, key)
	}
	return nil
}
