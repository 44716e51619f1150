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

// ItemStore handles all item-related database operations.
type ItemStore struct {
	db *sql.DB
}

// NewItemStore creates a new ItemStore with the given database connection.
func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

// itemColumns lists the columns selected in item queries.
const itemColumns = `id, category_id, name, original_filename, content_type, size_bytes,
	width, height, md5, sha256, original_timestamp, local_filename, account_id,
	storage_filename, created_at, updated_at`

// prefixedItemColumns is itemColumns qualified with the "i" alias for joins.
const prefixedItemColumns = `i.id, i.category_id, i.name, i.original_filename, i.content_type,
	i.size_bytes, i.width, i.height, i.md5, i.sha256, i.original_timestamp, i.local_filename,
	i.account_id, i.storage_filename, i.created_at, i.updated_at`

// eligibleOrder is the capture key: timestamp with missing ones first, then id.
const eligibleOrder = `ORDER BY original_timestamp ASC NULLS FIRST, id`

// scanItem scans an item row from the result set.
func scanItem(scanner interface{ Scan(...any) error }) (*models.Item, error) {
	var i models.Item
	err := scanner.Scan(
		&i.ID, &i.CategoryID, &i.Name, &i.OriginalFilename, &i.ContentType, &i.SizeBytes,
		&i.Width, &i.Height, &i.MD5, &i.SHA256, &i.OriginalTimestamp, &i.LocalFilename,
		&i.AccountID, &i.StorageFilename, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func collectItems(rows *sql.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *i)
	}
	return items, rows.Err()
}

// Create inserts a new item and returns it with the generated ID. Returns
// ErrDuplicate when an item with the same digests already exists.
func (s *ItemStore) Create(ctx context.Context, i *models.Item) (*models.Item, error) {
	if err := i.CheckStorageState(); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	// Callers may pick the id up front to name the local file after it.
	id := i.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO items (id, category_id, name, original_filename, content_type, size_bytes,
			width, height, md5, sha256, original_timestamp, local_filename, account_id,
			storage_filename)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+itemColumns,
		id, i.CategoryID, i.Name, i.OriginalFilename, i.ContentType, i.SizeBytes,
		i.Width, i.Height, i.MD5, i.SHA256, i.OriginalTimestamp, i.LocalFilename, i.AccountID,
		i.StorageFilename,
	)
	created, err := scanItem(row)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return created, nil
}

// FindByID retrieves a single item by its UUID. Returns nil if not found.
func (s *ItemStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	i, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find item by id: %w", err)
	}
	return i, nil
}

// ListEligible returns the remote items directly owned by a category in
// capture order. A non-positive limit returns every item.
func (s *ItemStore) ListEligible(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]models.Item, error) {
	var limitArg any // NULL means no limit
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE category_id = $1 AND storage_filename IS NOT NULL
		`+eligibleOrder+`
		LIMIT $2 OFFSET $3
	`, categoryID, limitArg, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list eligible items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListPending returns items still waiting for their upload, oldest first.
// A non-positive limit returns every item.
func (s *ItemStore) ListPending(ctx context.Context, limit int) ([]models.Item, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE local_filename IS NOT NULL
		ORDER BY created_at
		LIMIT $1
	`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// MarkRemote records a completed upload: the local location is dropped and
// the remote one set. Returns false if the item is gone or already remote.
func (s *ItemStore) MarkRemote(ctx context.Context, id, accountID uuid.UUID, location string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET local_filename = NULL, account_id = $2, storage_filename = $3, updated_at = NOW()
		WHERE id = $1 AND local_filename IS NOT NULL
	`, id, accountID, location)
	if err != nil {
		return false, fmt.Errorf("mark item remote: %w", err)
	}
	return affectedOne(res)
}

// Move reassigns an item to another category and returns the category it
// left. Returns nil if the item does not exist.
func (s *ItemStore) Move(ctx context.Context, id, categoryID uuid.UUID) (*uuid.UUID, error) {
	var old uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		WITH old AS (SELECT category_id FROM items WHERE id = $1 FOR UPDATE)
		UPDATE items SET category_id = $2, updated_at = NOW()
		FROM old
		WHERE items.id = $1
		RETURNING old.category_id
	`, id, categoryID).Scan(&old)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("move item: %w", err)
	}
	return &old, nil
}

// Delete removes an item and returns it so the caller can clean up the
// stored file and repair the category tree.
func (s *ItemStore) Delete(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM items WHERE id = $1
		RETURNING `+itemColumns, id)
	i, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	return i, nil
}

// Count returns the total number of items.
func (s *ItemStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}
