// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"photostore/internal/database"
	"photostore/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "photostore")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "photostore")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Reset goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// createCategory inserts a category and deletes it (with its subtree and
// items) when the test finishes.
func createCategory(t *testing.T, s *CategoryStore, name string, parent *uuid.UUID) *models.Category {
	t.Helper()
	c, err := s.Create(context.Background(), &models.Category{Name: name, ParentID: parent})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	t.Cleanup(func() { s.db.Exec("DELETE FROM categories WHERE id = $1", c.ID) })
	return c
}

// createAccount inserts a uniquely named account accepting photos.
func createAccount(t *testing.T, s *AccountStore, quota int64, kinds ...string) *models.StorageAccount {
	t.Helper()
	if len(kinds) == 0 {
		kinds = []string{models.KindPhoto}
	}
	a, err := s.Create(context.Background(), &models.StorageAccount{
		Login:      "test-" + uuid.NewString(),
		Endpoint:   "http://localhost:9000",
		Bucket:     "photos",
		AccessKey:  "key",
		SecretKey:  "secret",
		QuotaBytes: quota,
		Kinds:      kinds,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	t.Cleanup(func() {
		s.db.Exec("DELETE FROM items WHERE account_id = $1", a.ID)
		s.db.Exec("DELETE FROM storage_accounts WHERE id = $1", a.ID)
	})
	return a
}

// digests returns the hex md5 and sha256 of fresh random content.
func digests(t *testing.T) (string, string) {
	t.Helper()
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	m := md5.Sum(buf)
	s := sha256.Sum256(buf)
	return hex.EncodeToString(m[:]), hex.EncodeToString(s[:])
}
