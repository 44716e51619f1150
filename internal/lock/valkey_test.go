// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testValkeyClient returns a Redis client for tests on DB 15.
// Skips if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     envOr("VALKEY_HOST", "localhost") + ":" + envOr("VALKEY_PORT", "6379"),
		Password: os.Getenv("VALKEY_PASSWORD"),
		DB:       15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, keyPrefix+"test:*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	l := NewRedisLocker(testValkeyClient(t), 10*time.Millisecond)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "test:acquire", Options{Block: time.Second, Lease: time.Minute})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = l.Acquire(ctx, "test:acquire", Options{Block: 50 * time.Millisecond, Lease: time.Minute})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second Acquire = %v, want ErrTimeout", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again, err := l.Acquire(ctx, "test:acquire", Options{Block: 0, Lease: time.Minute})
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again.Release(ctx)
}

func TestRedisLockerLeaseExpiry(t *testing.T) {
	l := NewRedisLocker(testValkeyClient(t), 10*time.Millisecond)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "test:expiry", Options{Block: 0, Lease: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	fresh, err := l.Acquire(ctx, "test:expiry", Options{Block: time.Second, Lease: time.Minute})
	if err != nil {
		t.Fatalf("Acquire after lease expiry: %v", err)
	}
	defer fresh.Release(ctx)

	// The expired holder must not delete the new holder's key.
	if err := stale.Release(ctx); !errors.Is(err, ErrLeaseExpired) {
		t.Errorf("stale Release = %v, want ErrLeaseExpired", err)
	}
	if _, err := l.Acquire(ctx, "test:expiry", Options{Block: 0, Lease: time.Minute}); !errors.Is(err, ErrTimeout) {
		t.Errorf("key should still be held by the fresh lease, got %v", err)
	}
}
