// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"photostore/internal/models"
)

// CategoryStore manages the category tree in the database.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, name, description, parent_id, sort_order, main_item_id,
	item_count, child_count, created_at, updated_at`

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Description, &c.ParentID, &c.SortOrder, &c.MainItemID,
		&c.ItemCount, &c.ChildCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new category and returns it. The parent's child counter
// is maintained by the caller through IncrementCounter.
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, parent_id, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING `+categoryColumns,
		c.Name, c.Description, c.ParentID, c.SortOrder,
	)
	result, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return result, nil
}

// FindByID retrieves a category by ID. Returns nil if not found.
func (s *CategoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// List returns all categories ordered for display.
func (s *CategoryStore) List(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		ORDER BY sort_order, name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// Tree returns categories as a nested tree structure.
func (s *CategoryStore) Tree(ctx context.Context) ([]models.Category, error) {
	flat, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(flat), nil
}

// ChildMainItems returns the eligible items currently referenced as main
// item by the direct children of a category, ordered by the capture key.
func (s *CategoryStore) ChildMainItems(ctx context.Context, id uuid.UUID) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedItemColumns+`
		FROM categories c
		JOIN items i ON i.id = c.main_item_id
		WHERE c.parent_id = $1 AND i.storage_filename IS NOT NULL
		ORDER BY i.original_timestamp ASC NULLS FIRST, i.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list child main items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// SetMainItemIfUnset points the category at itemID only if it has no main
// item yet. Returns false when the category already had one (or is gone).
func (s *CategoryStore) SetMainItemIfUnset(ctx context.Context, id, itemID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET main_item_id = $2, updated_at = NOW()
		WHERE id = $1 AND main_item_id IS NULL
	`, id, itemID)
	if err != nil {
		return false, fmt.Errorf("set main item: %w", err)
	}
	return affectedOne(res)
}

// ClearMainItemIfEquals unsets the category's main item only if it is
// currently itemID.
func (s *CategoryStore) ClearMainItemIfEquals(ctx context.Context, id, itemID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET main_item_id = NULL, updated_at = NOW()
		WHERE id = $1 AND main_item_id = $2
	`, id, itemID)
	if err != nil {
		return false, fmt.Errorf("clear main item: %w", err)
	}
	return affectedOne(res)
}

// IncrementCounter atomically adds delta to one of the cached counters.
func (s *CategoryStore) IncrementCounter(ctx context.Context, id uuid.UUID, field models.CounterField, delta int) error {
	if !field.Valid() {
		return fmt.Errorf("increment counter: unknown field %q", field)
	}
	// field is one of two constants, safe to interpolate.
	_, err := s.db.ExecContext(ctx,
		`UPDATE categories SET `+string(field)+` = `+string(field)+` + $2 WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	return nil
}

// BuildTree nests a flat category list by parent, keeping the input order
// among siblings.
func BuildTree(flat []models.Category) []models.Category {
	return buildTree(flat, nil)
}

// buildTree recursively builds a tree from a flat list.
func buildTree(flat []models.Category, parentID *uuid.UUID) []models.Category {
	var result []models.Category
	for _, c := range flat {
		if ptrEqual(c.ParentID, parentID) {
			c.Children = buildTree(flat, &c.ID)
			result = append(result, c)
		}
	}
	return result
}

// ptrEqual compares two *uuid.UUID for equality (both nil or same value).
func ptrEqual(a, b *uuid.UUID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
