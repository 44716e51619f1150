// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package memstore keeps categories, items and storage accounts in memory.
// It mirrors the PostgreSQL stores method for method and backs single-node
// runs without a database as well as the core logic tests.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"photostore/internal/models"
	"photostore/internal/store"
)

// DB holds all records behind one mutex. Each method is atomic on its own,
// like a single SQL statement.
type DB struct {
	mu         sync.Mutex
	categories map[uuid.UUID]*models.Category
	items      map[uuid.UUID]*models.Item
	accounts   map[uuid.UUID]*models.StorageAccount
}

// New returns an empty in-memory database.
func New() *DB {
	return &DB{
		categories: make(map[uuid.UUID]*models.Category),
		items:      make(map[uuid.UUID]*models.Item),
		accounts:   make(map[uuid.UUID]*models.StorageAccount),
	}
}

// Categories returns the category tree store.
func (db *DB) Categories() *CategoryStore { return &CategoryStore{db: db} }

// Items returns the item store.
func (db *DB) Items() *ItemStore { return &ItemStore{db: db} }

// Accounts returns the capacity ledger.
func (db *DB) Accounts() *AccountStore { return &AccountStore{db: db} }

func idOrNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func lessID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// CategoryStore is the in-memory category tree store.
type CategoryStore struct{ db *DB }

func copyCategory(c *models.Category) *models.Category {
	out := *c
	out.ParentID = cloneID(c.ParentID)
	out.MainItemID = cloneID(c.MainItemID)
	out.Children = nil
	return &out
}

// Create inserts a category. A zero ID is replaced with a random one.
func (s *CategoryStore) Create(_ context.Context, c *models.Category) (*models.Category, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if c.ParentID != nil {
		if _, ok := s.db.categories[*c.ParentID]; !ok {
			return nil, fmt.Errorf("create category: parent %s not found", *c.ParentID)
		}
	}

	now := time.Now()
	stored := copyCategory(c)
	stored.ID = idOrNew(c.ID)
	if _, exists := s.db.categories[stored.ID]; exists {
		return nil, store.ErrDuplicate
	}
	stored.MainItemID = nil
	stored.ItemCount, stored.ChildCount = 0, 0
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.db.categories[stored.ID] = stored
	return copyCategory(stored), nil
}

// FindByID returns a copy of the category, or nil if not found.
func (s *CategoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Category, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.categories[id]
	if !ok {
		return nil, nil
	}
	return copyCategory(c), nil
}

// List returns all categories ordered like the SQL store.
func (s *CategoryStore) List(_ context.Context) ([]models.Category, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Category, 0, len(s.db.categories))
	for _, c := range s.db.categories {
		out = append(out, *copyCategory(c))
	}
	slices.SortFunc(out, func(a, b models.Category) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return lessID(a.ID, b.ID)
	})
	return out, nil
}

// Tree returns categories as a nested tree structure.
func (s *CategoryStore) Tree(ctx context.Context) ([]models.Category, error) {
	flat, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return store.BuildTree(flat), nil
}

// ChildMainItems returns the eligible items the direct children point at.
func (s *CategoryStore) ChildMainItems(_ context.Context, id uuid.UUID) ([]models.Item, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []models.Item
	for _, c := range s.db.categories {
		if c.ParentID == nil || *c.ParentID != id || c.MainItemID == nil {
			continue
		}
		if item, ok := s.db.items[*c.MainItemID]; ok && item.IsRemote() {
			out = append(out, *copyItem(item))
		}
	}
	sortItems(out)
	return out, nil
}

// SetMainItemIfUnset sets the main item only when none is set.
func (s *CategoryStore) SetMainItemIfUnset(_ context.Context, id, itemID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.categories[id]
	if !ok || c.MainItemID != nil {
		return false, nil
	}
	c.MainItemID = &itemID
	c.UpdatedAt = time.Now()
	return true, nil
}

// ClearMainItemIfEquals clears the main item only when it is itemID.
func (s *CategoryStore) ClearMainItemIfEquals(_ context.Context, id, itemID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.categories[id]
	if !ok || !c.HasMainItem(itemID) {
		return false, nil
	}
	c.MainItemID = nil
	c.UpdatedAt = time.Now()
	return true, nil
}

// IncrementCounter adds delta to a cached counter.
func (s *CategoryStore) IncrementCounter(_ context.Context, id uuid.UUID, field models.CounterField, delta int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c, ok := s.db.categories[id]
	if !ok {
		return nil
	}
	switch field {
	case models.CounterItems:
		c.ItemCount += delta
	case models.CounterChildren:
		c.ChildCount += delta
	default:
		return fmt.Errorf("increment counter: unknown field %q", field)
	}
	return nil
}
