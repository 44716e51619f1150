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

// AccountStore is the capacity ledger: storage accounts with their cached
// remaining capacity. Read-modify-write sequences on one account must run
// under the account lock; the store itself does not serialize them.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore returns a new AccountStore.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, login, endpoint, region, bucket, access_key, secret_key,
	quota_bytes, remaining_bytes, kinds, refreshed_at, created_at`

func scanAccount(scanner interface{ Scan(...any) error }) (*models.StorageAccount, error) {
	var (
		a     models.StorageAccount
		kinds string
	)
	err := scanner.Scan(
		&a.ID, &a.Login, &a.Endpoint, &a.Region, &a.Bucket, &a.AccessKey, &a.SecretKey,
		&a.QuotaBytes, &a.RemainingBytes, &kinds, &a.RefreshedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Kinds = models.SplitKinds(kinds)
	return &a, nil
}

func (s *AccountStore) query(ctx context.Context, query string, args ...any) ([]models.StorageAccount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.StorageAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// Create registers a storage account. Remaining capacity starts at the quota
// until the first refresh.
func (s *AccountStore) Create(ctx context.Context, a *models.StorageAccount) (*models.StorageAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO storage_accounts (login, endpoint, region, bucket, access_key, secret_key,
			quota_bytes, remaining_bytes, kinds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		RETURNING `+accountColumns,
		a.Login, a.Endpoint, a.Region, a.Bucket, a.AccessKey, a.SecretKey,
		a.QuotaBytes, models.JoinKinds(a.Kinds),
	)
	created, err := scanAccount(row)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// FindByID retrieves an account by ID. Returns nil if not found.
func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.StorageAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM storage_accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return a, nil
}

// List returns all accounts ordered by id.
func (s *AccountStore) List(ctx context.Context) ([]models.StorageAccount, error) {
	accounts, err := s.query(ctx, `SELECT `+accountColumns+` FROM storage_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// ListAccepting returns the accounts accepting a resource kind in
// ascending id order, the order reservations try them in.
func (s *AccountStore) ListAccepting(ctx context.Context, kind string) ([]models.StorageAccount, error) {
	accounts, err := s.query(ctx, `
		SELECT `+accountColumns+`
		FROM storage_accounts
		WHERE $1 = ANY(string_to_array(kinds, ','))
		ORDER BY id
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list accounts accepting %s: %w", kind, err)
	}
	return accounts, nil
}

// Debit subtracts a reservation from the cached remaining capacity.
func (s *AccountStore) Debit(ctx context.Context, id uuid.UUID, amount int64) error {
	return s.adjust(ctx, id, -amount)
}

// Credit gives a reservation back after a failed transfer.
func (s *AccountStore) Credit(ctx context.Context, id uuid.UUID, amount int64) error {
	return s.adjust(ctx, id, amount)
}

func (s *AccountStore) adjust(ctx context.Context, id uuid.UUID, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE storage_accounts SET remaining_bytes = remaining_bytes + $2 WHERE id = $1
	`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust remaining capacity: %w", err)
	}
	return nil
}

// SetRemaining overwrites the cached capacity with a freshly measured value.
func (s *AccountStore) SetRemaining(ctx context.Context, id uuid.UUID, remaining int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE storage_accounts SET remaining_bytes = $2, refreshed_at = NOW() WHERE id = $1
	`, id, remaining)
	if err != nil {
		return fmt.Errorf("set remaining capacity: %w", err)
	}
	return nil
}
