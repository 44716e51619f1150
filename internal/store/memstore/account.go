// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"photostore/internal/models"
	"photostore/internal/store"
)

// AccountStore is the in-memory capacity ledger.
type AccountStore struct{ db *DB }

func copyAccount(a *models.StorageAccount) *models.StorageAccount {
	out := *a
	out.Kinds = slices.Clone(a.Kinds)
	if a.RefreshedAt != nil {
		ts := *a.RefreshedAt
		out.RefreshedAt = &ts
	}
	return &out
}

// Create registers an account with remaining capacity equal to its quota.
func (s *AccountStore) Create(_ context.Context, a *models.StorageAccount) (*models.StorageAccount, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, other := range s.db.accounts {
		if other.Login == a.Login {
			return nil, store.ErrDuplicate
		}
	}

	stored := copyAccount(a)
	stored.ID = idOrNew(a.ID)
	if _, exists := s.db.accounts[stored.ID]; exists {
		return nil, store.ErrDuplicate
	}
	stored.RemainingBytes = a.QuotaBytes
	stored.RefreshedAt = nil
	stored.CreatedAt = time.Now()
	s.db.accounts[stored.ID] = stored
	return copyAccount(stored), nil
}

// FindByID returns a copy of the account, or nil if not found.
func (s *AccountStore) FindByID(_ context.Context, id uuid.UUID) (*models.StorageAccount, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return nil, nil
	}
	return copyAccount(a), nil
}

// List returns all accounts ordered by id.
func (s *AccountStore) List(_ context.Context) ([]models.StorageAccount, error) {
	return s.filter(func(*models.StorageAccount) bool { return true }), nil
}

// ListAccepting returns accounts accepting kind, ordered by id.
func (s *AccountStore) ListAccepting(_ context.Context, kind string) ([]models.StorageAccount, error) {
	return s.filter(func(a *models.StorageAccount) bool { return a.Accepts(kind) }), nil
}

func (s *AccountStore) filter(keep func(*models.StorageAccount) bool) []models.StorageAccount {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []models.StorageAccount
	for _, a := range s.db.accounts {
		if keep(a) {
			out = append(out, *copyAccount(a))
		}
	}
	slices.SortFunc(out, func(a, b models.StorageAccount) int { return lessID(a.ID, b.ID) })
	return out
}

// Debit subtracts amount from the remaining capacity.
func (s *AccountStore) Debit(_ context.Context, id uuid.UUID, amount int64) error {
	s.adjust(id, -amount)
	return nil
}

// Credit adds amount back to the remaining capacity.
func (s *AccountStore) Credit(_ context.Context, id uuid.UUID, amount int64) error {
	s.adjust(id, amount)
	return nil
}

func (s *AccountStore) adjust(id uuid.UUID, delta int64) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if a, ok := s.db.accounts[id]; ok {
		a.RemainingBytes += delta
	}
}

// SetRemaining overwrites the remaining capacity.
func (s *AccountStore) SetRemaining(_ context.Context, id uuid.UUID, remaining int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if a, ok := s.db.accounts[id]; ok {
		now := time.Now()
		a.RemainingBytes = remaining
		a.RefreshedAt = &now
	}
	return nil
}
