// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package catalog implements the category and item mutations. Each one
// updates the stores, keeps the cached counters in step and hands main item
// maintenance to the propagation engine. Uploads reserve capacity on a
// storage account and transfer the file in a deferred job.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"photostore/internal/jobs"
	"photostore/internal/lock"
	"photostore/internal/models"
	"photostore/internal/storage"
)

// ErrNotFound is returned when a referenced category, item or account
// does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CategoryStore is the category tree store.
type CategoryStore interface {
	Create(ctx context.Context, c *models.Category) (*models.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	IncrementCounter(ctx context.Context, id uuid.UUID, field models.CounterField, delta int) error
}

// ItemStore is the item store.
type ItemStore interface {
	Create(ctx context.Context, i *models.Item) (*models.Item, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	ListPending(ctx context.Context, limit int) ([]models.Item, error)
	MarkRemote(ctx context.Context, id, accountID uuid.UUID, location string) (bool, error)
	Move(ctx context.Context, id, categoryID uuid.UUID) (*uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) (*models.Item, error)
}

// AccountStore is the storage account registry.
type AccountStore interface {
	Create(ctx context.Context, a *models.StorageAccount) (*models.StorageAccount, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.StorageAccount, error)
}

// Propagator maintains main items after item changes.
type Propagator interface {
	OnItemBecameEligible(ctx context.Context, itemID uuid.UUID) error
	OnItemLeftCategory(ctx context.Context, categoryID, itemID uuid.UUID) error
	OnItemReparented(ctx context.Context, itemID, oldCategoryID, newCategoryID uuid.UUID) error
}

// Reserver hands out upload capacity.
type Reserver interface {
	Reserve(ctx context.Context, size int64, kind string) (uuid.UUID, error)
	Credit(ctx context.Context, accountID uuid.UUID, size int64) error
}

// Remote is the storage provider files are transferred to.
type Remote interface {
	Upload(ctx context.Context, account *models.StorageAccount, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, account *models.StorageAccount, key string) error
}

// Enqueuer accepts deferred jobs.
type Enqueuer interface {
	Enqueue(job jobs.Job) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Categories CategoryStore
	Items      ItemStore
	Accounts   AccountStore
	Engine     Propagator
	Capacity   Reserver
	Remote     Remote
	Queue      Enqueuer
	UploadDir  string
}

// Service performs catalog mutations.
type Service struct {
	categories CategoryStore
	items      ItemStore
	accounts   AccountStore
	engine     Propagator
	capacity   Reserver
	remote     Remote
	queue      Enqueuer
	uploadDir  string

	notify func(ctx context.Context, categoryID uuid.UUID)
	now    func() time.Time
}

// New creates a catalog service.
func New(d Deps) *Service {
	return &Service{
		categories: d.Categories,
		items:      d.Items,
		accounts:   d.Accounts,
		engine:     d.Engine,
		capacity:   d.Capacity,
		remote:     d.Remote,
		queue:      d.Queue,
		uploadDir:  d.UploadDir,
		now:        time.Now,
	}
}

// Notify registers fn to be called when a category's counters change.
func (s *Service) Notify(fn func(ctx context.Context, categoryID uuid.UUID)) {
	s.notify = fn
}

func (s *Service) changed(ctx context.Context, ids ...uuid.UUID) {
	if s.notify == nil {
		return
	}
	for _, id := range ids {
		s.notify(ctx, id)
	}
}

// Retryable reports whether a failed job is worth running again: lock
// timeouts and transient provider errors are, everything else is not.
func Retryable(err error) bool {
	return errors.Is(err, lock.ErrTimeout) || storage.IsRetryable(err)
}

const maxCategoryNameLen = 200

// NewCategory is the input of CreateCategory.
type NewCategory struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	SortOrder   int        `json:"sort_order"`
}

// CreateCategory adds a category under an optional parent.
func (s *Service) CreateCategory(ctx context.Context, in NewCategory) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxCategoryNameLen {
		return nil, invalid("name", "must be at most %d characters", maxCategoryNameLen)
	}

	if in.ParentID != nil {
		parent, err := s.categories.FindByID(ctx, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("load parent category: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("parent category %s: %w", *in.ParentID, ErrNotFound)
		}
	}

	created, err := s.categories.Create(ctx, &models.Category{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ParentID:    in.ParentID,
		SortOrder:   in.SortOrder,
	})
	if err != nil {
		return nil, err
	}

	if created.ParentID != nil {
		if err := s.categories.IncrementCounter(ctx, *created.ParentID, models.CounterChildren, 1); err != nil {
			return nil, err
		}
		s.changed(ctx, *created.ParentID)
	}

	slog.Info("category created", "id", created.ID, "name", created.Name)
	return created, nil
}

// NewAccount is the input of RegisterAccount.
type NewAccount struct {
	Login      string   `json:"login"`
	Endpoint   string   `json:"endpoint"`
	Region     string   `json:"region"`
	Bucket     string   `json:"bucket"`
	AccessKey  string   `json:"access_key"`
	SecretKey  string   `json:"secret_key"`
	QuotaBytes int64    `json:"quota_bytes"`
	Kinds      []string `json:"kinds"`
}

// RegisterAccount stores a new storage account. Its remaining capacity
// starts at the full quota until the first refresh.
func (s *Service) RegisterAccount(ctx context.Context, in NewAccount) (*models.StorageAccount, error) {
	login := strings.TrimSpace(in.Login)
	switch {
	case login == "":
		return nil, invalid("login", "is required")
	case strings.TrimSpace(in.Bucket) == "":
		return nil, invalid("bucket", "is required")
	case in.AccessKey == "" || in.SecretKey == "":
		return nil, invalid("credentials", "access and secret key are required")
	case in.QuotaBytes <= 0:
		return nil, invalid("quota_bytes", "must be positive")
	}

	kinds := in.Kinds
	if len(kinds) == 0 {
		kinds = []string{models.KindPhoto}
	}
	for _, k := range kinds {
		if !models.ValidKind(k) {
			return nil, invalid("kinds", "unknown kind %q", k)
		}
	}

	account, err := s.accounts.Create(ctx, &models.StorageAccount{
		Login:      login,
		Endpoint:   strings.TrimSpace(in.Endpoint),
		Region:     strings.TrimSpace(in.Region),
		Bucket:     strings.TrimSpace(in.Bucket),
		AccessKey:  in.AccessKey,
		SecretKey:  in.SecretKey,
		QuotaBytes: in.QuotaBytes,
		Kinds:      kinds,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("storage account registered", "id", account.ID, "login", account.Login, "kinds", account.Kinds)
	return account, nil
}
