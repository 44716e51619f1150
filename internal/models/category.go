// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the records persisted by the catalog: categories,
// media items and the storage accounts items are uploaded against.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a node in the category forest. ParentID is a weak back
// reference used only for ancestor walks; MainItemID is a derived pointer to
// the representative item of the subtree and never authoritative.
type Category struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	SortOrder   int        `json:"sort_order"`
	MainItemID  *uuid.UUID `json:"main_item_id"`
	ItemCount   int        `json:"item_count"`
	ChildCount  int        `json:"child_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Virtual field populated by the tree listing.
	Children []Category `json:"children,omitempty"`
}

// CounterField names a cached aggregate counter on a category.
type CounterField string

const (
	CounterItems    CounterField = "item_count"
	CounterChildren CounterField = "child_count"
)

// Valid reports whether f is a known counter column.
func (f CounterField) Valid() bool {
	return f == CounterItems || f == CounterChildren
}

// HasMainItem reports whether the category currently points at itemID.
func (c *Category) HasMainItem(itemID uuid.UUID) bool {
	return c.MainItemID != nil && *c.MainItemID == itemID
}
