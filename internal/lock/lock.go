// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package lock provides named mutual-exclusion locks with a bounded wait
// and a lease. A lock whose holder never releases it expires after the
// lease, so a crashed worker cannot block others forever. Every critical
// section must re-read the state it protects after acquiring: a previous
// holder whose lease expired may have left partially applied changes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTimeout is returned when a lock could not be acquired within the
	// block duration. The caller retries the whole operation later.
	ErrTimeout = errors.New("lock: wait timed out")

	// ErrLeaseExpired is returned by Release when the lease ran out before
	// the holder released it and the key may now belong to someone else.
	ErrLeaseExpired = errors.New("lock: lease expired before release")
)

// Options bound how long Acquire waits and how long a lock survives
// without an explicit release.
type Options struct {
	Block time.Duration
	Lease time.Duration
}

func (o Options) validate(key string) error {
	if o.Lease <= 0 {
		return fmt.Errorf("lock %s: lease must be positive", key)
	}
	if o.Block < 0 {
		return fmt.Errorf("lock %s: block must not be negative", key)
	}
	return nil
}

// Locker acquires locks by key. Keys are opaque strings scoped by the
// caller, see CategoryKey and AccountKey. Locks are not re-entrant.
type Locker interface {
	Acquire(ctx context.Context, key string, opts Options) (*Lease, error)
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	key     string
	token   string
	release func(ctx context.Context, key, token string) error

	once sync.Once
	err  error
}

func newLease(key string, release func(ctx context.Context, key, token string) error) *Lease {
	return &Lease{key: key, token: uuid.NewString(), release: release}
}

// Key returns the locked key.
func (l *Lease) Key() string {
	return l.key
}

// Release gives the lock back. Only the first call talks to the backend.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.release(ctx, l.key, l.token)
	})
	return l.err
}

// With runs fn while holding key. The lock is released on every exit path,
// including a panic in fn. fn receives a context that is not cancelled with
// ctx: once the lock is held the critical section runs to completion.
func With(ctx context.Context, l Locker, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}

	critical := context.WithoutCancel(ctx)
	defer func() {
		if err := lease.Release(critical); err != nil {
			slog.Warn("lock release failed", "key", key, "error", err)
		}
	}()

	return fn(critical)
}

// CategoryKey is the lock key guarding a category's main item.
func CategoryKey(id uuid.UUID) string {
	return fmt.Sprintf("category:%s", id)
}

// AccountKey is the lock key guarding a storage account's capacity figure.
// Reservations and refreshes share it.
func AccountKey(id uuid.UUID) string {
	return fmt.Sprintf("account:%s", id)
}

// waitTimeout returns how long to sleep before the next attempt, or false
// when the block deadline has passed.
func waitTimeout(deadline time.Time, next time.Duration) (time.Duration, bool) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, false
	}
	if next <= 0 || next > remaining {
		return remaining, true
	}
	return next, true
}

func timeoutError(key string) error {
	return fmt.Errorf("%w: %s", ErrTimeout, key)
}
