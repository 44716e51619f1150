// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package capacity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"photostore/internal/jobs"
	"photostore/internal/lock"
	"photostore/internal/models"
)

// Provider reports how much space an account really has left.
type Provider interface {
	RemainingCapacity(ctx context.Context, account *models.StorageAccount) (int64, error)
}

// Refresher overwrites cached remaining figures with provider values.
type Refresher struct {
	ledger   Ledger
	provider Provider
	locker   lock.Locker
	opts     lock.Options
}

// NewRefresher creates a refresher. opts should carry a lease long enough
// for the provider round trip.
func NewRefresher(ledger Ledger, provider Provider, locker lock.Locker, opts lock.Options) *Refresher {
	return &Refresher{ledger: ledger, provider: provider, locker: locker, opts: opts}
}

// Refresh queries the provider while holding the account lock and stores
// the result, replacing whatever reservations had debited. On error the
// cached figure is left untouched.
func (r *Refresher) Refresh(ctx context.Context, accountID uuid.UUID) error {
	return lock.With(ctx, r.locker, lock.AccountKey(accountID), r.opts, func(ctx context.Context) error {
		account, err := r.ledger.FindByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load account %s: %w", accountID, err)
		}
		if account == nil {
			return nil
		}

		remaining, err := r.provider.RemainingCapacity(ctx, account)
		if err != nil {
			return fmt.Errorf("query capacity of %s: %w", account.Login, err)
		}
		if err := r.ledger.SetRemaining(ctx, accountID, remaining); err != nil {
			return fmt.Errorf("store capacity of %s: %w", account.Login, err)
		}

		slog.Info("capacity refreshed",
			"account", account.Login,
			"remaining", remaining,
			"previous", account.RemainingBytes,
		)
		return nil
	})
}

// Enqueuer accepts deferred jobs.
type Enqueuer interface {
	Enqueue(job jobs.Job) error
}

// Scheduler periodically enqueues a refresh for every account.
type Scheduler struct {
	ledger    Ledger
	refresher *Refresher
	queue     Enqueuer
	interval  time.Duration

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler that fires every interval once started.
func NewScheduler(ledger Ledger, refresher *Refresher, queue Enqueuer, interval time.Duration) *Scheduler {
	return &Scheduler{
		ledger:    ledger,
		refresher: refresher,
		queue:     queue,
		interval:  interval,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background ticker.
func (s *Scheduler) Start(ctx context.Context) {
	s.started = true
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.EnqueueAll(ctx); err != nil {
					slog.Error("capacity refresh scheduling failed", "error", err)
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the ticker and waits for it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started {
		<-s.done
	}
}

// EnqueueAll schedules one refresh job per account.
func (s *Scheduler) EnqueueAll(ctx context.Context) error {
	accounts, err := s.ledger.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		if err := s.EnqueueOne(a.ID, a.Login); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueOne schedules a refresh of a single account.
func (s *Scheduler) EnqueueOne(accountID uuid.UUID, login string) error {
	err := s.queue.Enqueue(jobs.Job{
		Name: "refresh capacity " + login,
		Run: func(ctx context.Context) error {
			return s.refresher.Refresh(ctx, accountID)
		},
	})
	if err != nil {
		return fmt.Errorf("enqueue refresh of %s: %w", login, err)
	}
	return nil
}
