// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package capacity reserves upload space on storage accounts and keeps
// each account's cached remaining figure in line with the provider.
//
// Reservations debit the cached figure optimistically before the upload
// starts; refreshes overwrite it with what the provider reports. Both run
// under the account's named lock.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"photostore/internal/lock"
	"photostore/internal/models"
)

// ErrNoCapacity is returned when no account of the requested kind has room
// for the item. The caller must not start the upload.
var ErrNoCapacity = errors.New("no storage account available")

// Ledger is the persisted capacity record of every storage account.
type Ledger interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.StorageAccount, error)
	List(ctx context.Context) ([]models.StorageAccount, error)
	ListAccepting(ctx context.Context, kind string) ([]models.StorageAccount, error)
	Debit(ctx context.Context, id uuid.UUID, amount int64) error
	Credit(ctx context.Context, id uuid.UUID, amount int64) error
	SetRemaining(ctx context.Context, id uuid.UUID, remaining int64) error
}

// Selector picks the account an item is uploaded to.
type Selector struct {
	ledger Ledger
	locker lock.Locker
	opts   lock.Options
}

// NewSelector creates a selector guarding accounts with opts.
func NewSelector(ledger Ledger, locker lock.Locker, opts lock.Options) *Selector {
	return &Selector{ledger: ledger, locker: locker, opts: opts}
}

// Reserve debits size bytes from the first account, in stable id order,
// that accepts kind and still has room, and returns its id. Each candidate
// is re-read under its lock before the check. A lock timeout fails the
// whole reservation; nothing has been debited at that point.
func (s *Selector) Reserve(ctx context.Context, size int64, kind string) (uuid.UUID, error) {
	if size < 0 {
		return uuid.Nil, fmt.Errorf("reserve capacity: negative size %d", size)
	}

	candidates, err := s.ledger.ListAccepting(ctx, kind)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list accounts for %s: %w", kind, err)
	}

	for _, candidate := range candidates {
		id := candidate.ID
		var reserved bool

		err := lock.With(ctx, s.locker, lock.AccountKey(id), s.opts, func(ctx context.Context) error {
			account, err := s.ledger.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if account == nil || account.RemainingBytes < size {
				return nil
			}
			if err := s.ledger.Debit(ctx, id, size); err != nil {
				return err
			}
			reserved = true
			return nil
		})
		if err != nil {
			return uuid.Nil, fmt.Errorf("reserve on account %s: %w", candidate.Login, err)
		}
		if reserved {
			slog.Info("capacity reserved", "account", candidate.Login, "bytes", size, "kind", kind)
			return id, nil
		}
	}

	return uuid.Nil, fmt.Errorf("%w for %d bytes of kind %s", ErrNoCapacity, size, kind)
}

// Credit returns size bytes to an account after a reserved upload was
// abandoned.
func (s *Selector) Credit(ctx context.Context, accountID uuid.UUID, size int64) error {
	err := lock.With(ctx, s.locker, lock.AccountKey(accountID), s.opts, func(ctx context.Context) error {
		return s.ledger.Credit(ctx, accountID, size)
	})
	if err != nil {
		return fmt.Errorf("credit capacity on account %s: %w", accountID, err)
	}
	return nil
}
