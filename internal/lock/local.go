// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker implements Locker inside one process. It honours the same
// block and lease contract as RedisLocker and suits single-node
// deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localHold
}

type localHold struct {
	token    string
	expires  time.Time
	released chan struct{}
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localHold)}
}

// Acquire waits until key is released, its lease expires, or opts.Block elapses.
func (l *LocalLocker) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if err := opts.validate(key); err != nil {
		return nil, err
	}

	lease := newLease(key, l.release)
	deadline := time.Now().Add(opts.Block)

	for {
		l.mu.Lock()
		now := time.Now()
		cur := l.held[key]
		if cur == nil || !now.Before(cur.expires) {
			l.held[key] = &localHold{
				token:    lease.token,
				expires:  now.Add(opts.Lease),
				released: make(chan struct{}),
			}
			l.mu.Unlock()
			return lease, nil
		}
		released := cur.released
		untilExpiry := cur.expires.Sub(now)
		l.mu.Unlock()

		wait, ok := waitTimeout(deadline, untilExpiry)
		if !ok {
			return nil, timeoutError(key)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-released:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (l *LocalLocker) release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.held[key]
	if cur == nil || cur.token != token {
		return fmt.Errorf("%w: %s", ErrLeaseExpired, key)
	}
	delete(l.held, key)
	close(cur.released)
	return nil
}
