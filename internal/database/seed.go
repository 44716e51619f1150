package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// RootCategoryName is the category Seed creates in an empty catalog.
const RootCategoryName = "Photos"

// Seed creates a root category when the catalog has no categories yet, so
// uploads have somewhere to go on a fresh install.
func Seed(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING id
	`, RootCategoryName, "Top of the photo catalog").Scan(&id)
	if err != nil {
		return fmt.Errorf("seed insert root category: %w", err)
	}

	slog.Info("database seeded with root category", "id", id, "name", RootCategoryName)
	return nil
}
