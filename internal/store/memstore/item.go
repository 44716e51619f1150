// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"photostore/internal/models"
	"photostore/internal/store"
)

// ItemStore is the in-memory item store.
type ItemStore struct{ db *DB }

func copyItem(i *models.Item) *models.Item {
	out := *i
	out.AccountID = cloneID(i.AccountID)
	if i.OriginalTimestamp != nil {
		ts := *i.OriginalTimestamp
		out.OriginalTimestamp = &ts
	}
	if i.LocalFilename != nil {
		v := *i.LocalFilename
		out.LocalFilename = &v
	}
	if i.StorageFilename != nil {
		v := *i.StorageFilename
		out.StorageFilename = &v
	}
	return &out
}

func sortItems(items []models.Item) {
	slices.SortFunc(items, func(a, b models.Item) int {
		switch {
		case models.ItemLess(&a, &b):
			return -1
		case models.ItemLess(&b, &a):
			return 1
		}
		return 0
	})
}

// Create inserts an item. A zero ID is replaced with a random one.
func (s *ItemStore) Create(_ context.Context, i *models.Item) (*models.Item, error) {
	if err := i.CheckStorageState(); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.categories[i.CategoryID]; !ok {
		return nil, fmt.Errorf("create item: category %s not found", i.CategoryID)
	}
	for _, other := range s.db.items {
		if other.MD5 == i.MD5 && other.SHA256 == i.SHA256 {
			return nil, store.ErrDuplicate
		}
	}

	now := time.Now()
	stored := copyItem(i)
	stored.ID = idOrNew(i.ID)
	if _, exists := s.db.items[stored.ID]; exists {
		return nil, store.ErrDuplicate
	}
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.db.items[stored.ID] = stored
	return copyItem(stored), nil
}

// FindByID returns a copy of the item, or nil if not found.
func (s *ItemStore) FindByID(_ context.Context, id uuid.UUID) (*models.Item, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	i, ok := s.db.items[id]
	if !ok {
		return nil, nil
	}
	return copyItem(i), nil
}

// ListEligible returns the remote items of a category in capture order.
func (s *ItemStore) ListEligible(_ context.Context, categoryID uuid.UUID, limit, offset int) ([]models.Item, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []models.Item
	for _, i := range s.db.items {
		if i.CategoryID == categoryID && i.IsRemote() {
			out = append(out, *copyItem(i))
		}
	}
	sortItems(out)
	return page(out, limit, offset), nil
}

// ListPending returns items waiting for upload, oldest first.
func (s *ItemStore) ListPending(_ context.Context, limit int) ([]models.Item, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []models.Item
	for _, i := range s.db.items {
		if i.IsPending() {
			out = append(out, *copyItem(i))
		}
	}
	slices.SortFunc(out, func(a, b models.Item) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return page(out, limit, 0), nil
}

// MarkRemote switches a pending item to its remote location.
func (s *ItemStore) MarkRemote(_ context.Context, id, accountID uuid.UUID, location string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	i, ok := s.db.items[id]
	if !ok || !i.IsPending() {
		return false, nil
	}
	i.LocalFilename = nil
	i.AccountID = &accountID
	i.StorageFilename = &location
	i.UpdatedAt = time.Now()
	return true, nil
}

// Move reassigns an item and returns the category it left.
func (s *ItemStore) Move(_ context.Context, id, categoryID uuid.UUID) (*uuid.UUID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	i, ok := s.db.items[id]
	if !ok {
		return nil, nil
	}
	if _, ok := s.db.categories[categoryID]; !ok {
		return nil, fmt.Errorf("move item: category %s not found", categoryID)
	}
	old := i.CategoryID
	i.CategoryID = categoryID
	i.UpdatedAt = time.Now()
	return &old, nil
}

// Delete removes an item and returns it.
func (s *ItemStore) Delete(_ context.Context, id uuid.UUID) (*models.Item, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	i, ok := s.db.items[id]
	if !ok {
		return nil, nil
	}
	delete(s.db.items, id)
	return i, nil
}

// Count returns the number of items.
func (s *ItemStore) Count(_ context.Context) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.items), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
