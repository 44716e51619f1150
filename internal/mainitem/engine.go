// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package mainitem keeps every category's main item consistent with the
// items stored in its subtree. A category has a main item if and only if
// its subtree holds at least one remote item, and the main item always
// lives inside that subtree.
//
// Every operation is a walk from one category up its ancestor chain. Each
// level is handled under that category's named lock, with a fresh re-read
// of the category first; the lock is released before moving to the parent,
// so a walk never holds two locks. Walks are idempotent: re-running one from
// the same starting point after a failure converges to the same state.
package mainitem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"photostore/internal/lock"
	"photostore/internal/models"
)

// CategoryStore is the part of the category tree store the engine needs.
type CategoryStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ChildMainItems(ctx context.Context, id uuid.UUID) ([]models.Item, error)
	SetMainItemIfUnset(ctx context.Context, id, itemID uuid.UUID) (bool, error)
	ClearMainItemIfEquals(ctx context.Context, id, itemID uuid.UUID) (bool, error)
}

// ItemStore is the part of the item store the engine needs.
type ItemStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	ListEligible(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]models.Item, error)
}

// Engine propagates main item changes through the category tree.
type Engine struct {
	categories CategoryStore
	items      ItemStore
	locker     lock.Locker
	opts       lock.Options
	notify     func(ctx context.Context, categoryID uuid.UUID)
}

// New creates an engine. opts bounds each per-category critical section.
func New(categories CategoryStore, items ItemStore, locker lock.Locker, opts lock.Options) *Engine {
	return &Engine{
		categories: categories,
		items:      items,
		locker:     locker,
		opts:       opts,
	}
}

// Notify registers fn to be called whenever a category's main item changes.
func (e *Engine) Notify(fn func(ctx context.Context, categoryID uuid.UUID)) {
	e.notify = fn
}

// OnItemBecameEligible is called after an item finished its upload or was
// imported already remote. It offers the item as main item to its owning
// category and, while accepted, to each ancestor in turn.
func (e *Engine) OnItemBecameEligible(ctx context.Context, itemID uuid.UUID) error {
	item, err := e.items.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}
	if item == nil || !item.IsRemote() {
		slog.Debug("main item: item not eligible, nothing to propagate", "item", itemID)
		return nil
	}
	return e.promote(ctx, item.CategoryID, item.ID)
}

// OnItemLeftCategory is called after an item was moved out of categoryID or
// deleted. Every level still pointing at the item gets a replacement: the
// first remote item it owns directly, else the best main item among its
// children, else nothing. A level found unset is filled the same way: a
// concurrent walk may have cleared it while a child's pointer was dangling.
// Levels holding some other main item are left alone, but the walk still
// reads up to the root: a retried walk may find the levels below already
// repaired while an ancestor still points at the item.
func (e *Engine) OnItemLeftCategory(ctx context.Context, categoryID, itemID uuid.UUID) error {
	current := &categoryID
	for current != nil {
		id := *current
		var next *uuid.UUID

		err := lock.With(ctx, e.locker, lock.CategoryKey(id), e.opts, func(ctx context.Context) error {
			cat, err := e.categories.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if cat == nil {
				return nil
			}

			var changed bool
			switch {
			case cat.HasMainItem(itemID):
				cleared, err := e.categories.ClearMainItemIfEquals(ctx, id, itemID)
				if err != nil {
					return err
				}
				if !cleared {
					slog.Debug("main item: clear lost the race", "category", id, "item", itemID)
					next = cat.ParentID
					return nil
				}
				changed = true
			case cat.MainItemID != nil:
				next = cat.ParentID
				return nil
			}

			replacement, err := e.replacement(ctx, id, itemID)
			if err != nil {
				return err
			}
			if replacement != nil {
				set, err := e.categories.SetMainItemIfUnset(ctx, id, replacement.ID)
				if err != nil {
					return err
				}
				changed = changed || set
			}
			if changed {
				e.changed(ctx, id)
				slog.Debug("main item: demoted",
					"category", id,
					"item", itemID,
					"replacement", replacementID(replacement),
				)
			}
			next = cat.ParentID
			return nil
		})
		if err != nil {
			return fmt.Errorf("demote main item in category %s: %w", id, err)
		}
		current = next
	}
	return nil
}

// OnItemReparented is called after an item moved from oldCategoryID to
// newCategoryID. The old branch is repaired first, then the item is offered
// to its new branch. The two walks are independent lock sequences.
func (e *Engine) OnItemReparented(ctx context.Context, itemID, oldCategoryID, newCategoryID uuid.UUID) error {
	if err := e.OnItemLeftCategory(ctx, oldCategoryID, itemID); err != nil {
		return err
	}

	item, err := e.items.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}
	if item == nil || !item.IsRemote() {
		return nil
	}
	if item.CategoryID != newCategoryID {
		// Moved again meanwhile; that move runs its own walks.
		slog.Debug("main item: item left its new category before promotion",
			"item", itemID, "expected", newCategoryID, "actual", item.CategoryID)
		return nil
	}
	return e.promote(ctx, newCategoryID, itemID)
}

// promote sets itemID as main item of start and its ancestors until a level
// holds a different item. Levels already holding itemID are passed through,
// so a walk retried after a timeout reaches the ancestors it missed. A lost
// set-if-unset means another writer got there first and its walk covers the
// ancestors.
func (e *Engine) promote(ctx context.Context, start, itemID uuid.UUID) error {
	current := &start
	for current != nil {
		id := *current
		var next *uuid.UUID

		err := lock.With(ctx, e.locker, lock.CategoryKey(id), e.opts, func(ctx context.Context) error {
			cat, err := e.categories.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if cat == nil {
				return nil
			}
			if cat.MainItemID != nil {
				if cat.HasMainItem(itemID) {
					next = cat.ParentID
				}
				return nil
			}

			ok, err := e.categories.SetMainItemIfUnset(ctx, id, itemID)
			if err != nil {
				return err
			}
			if !ok {
				slog.Debug("main item: set lost the race", "category", id, "item", itemID)
				return nil
			}
			e.changed(ctx, id)

			slog.Debug("main item: promoted", "category", id, "item", itemID)
			next = cat.ParentID
			return nil
		})
		if err != nil {
			return fmt.Errorf("promote main item in category %s: %w", id, err)
		}
		current = next
	}
	return nil
}

// replacement picks the new main item for a category that just lost
// departed: its first own remote item, otherwise the lowest of its
// children's current main items. Children are asked for their cached
// pointer only, never rescanned.
func (e *Engine) replacement(ctx context.Context, categoryID, departed uuid.UUID) (*models.Item, error) {
	// Two rows: the departed item may still be listed if the caller runs
	// the walk before its own write is visible.
	direct, err := e.items.ListEligible(ctx, categoryID, 2, 0)
	if err != nil {
		return nil, err
	}
	for i := range direct {
		if direct[i].ID != departed {
			return &direct[i], nil
		}
	}

	candidates, err := e.categories.ChildMainItems(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	var best *models.Item
	for i := range candidates {
		c := &candidates[i]
		if c.ID == departed {
			continue
		}
		if best == nil || models.ItemLess(c, best) {
			best = c
		}
	}
	return best, nil
}

func (e *Engine) changed(ctx context.Context, categoryID uuid.UUID) {
	if e.notify != nil {
		e.notify(ctx, categoryID)
	}
}

func replacementID(item *models.Item) string {
	if item == nil {
		return "none"
	}
	return item.ID.String()
}
