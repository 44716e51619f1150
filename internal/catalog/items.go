// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package catalog

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"photostore/internal/capacity"
	"photostore/internal/imaging"
	"photostore/internal/jobs"
	"photostore/internal/models"
	"photostore/internal/storage"
)

// UploadInput is a file received for a category.
type UploadInput struct {
	CategoryID        uuid.UUID
	Filename          string
	Name              string
	Data              []byte
	OriginalTimestamp *time.Time
}

// Upload stores the file locally as a pending item, reserves capacity for
// it and schedules the transfer. When no account has room the pending item
// is discarded and capacity.ErrNoCapacity returned. A reservation that
// cannot be made right now (lock timeout) is retried by the transfer job.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Item, error) {
	if len(in.Data) == 0 {
		return nil, invalid("file", "is empty")
	}
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, invalid("file", "needs a filename")
	}

	cat, err := s.categories.FindByID(ctx, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("load category: %w", err)
	}
	if cat == nil {
		return nil, fmt.Errorf("category %s: %w", in.CategoryID, ErrNotFound)
	}

	contentType, err := imaging.DetectContentType(filename, in.Data)
	if err != nil {
		return nil, invalid("file", "%v", err)
	}
	width, height, err := imaging.Dimensions(contentType, in.Data)
	if err != nil {
		return nil, invalid("file", "%v", err)
	}

	md5sum := md5.Sum(in.Data)
	shasum := sha256.Sum256(in.Data)

	id := uuid.New()
	local := id.String() + imaging.Extension(contentType)
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(s.localPath(local), in.Data, 0o644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	item, err := s.items.Create(ctx, &models.Item{
		ID:                id,
		CategoryID:        cat.ID,
		Name:              name,
		OriginalFilename:  filename,
		ContentType:       contentType,
		SizeBytes:         int64(len(in.Data)),
		Width:             width,
		Height:            height,
		MD5:               hex.EncodeToString(md5sum[:]),
		SHA256:            hex.EncodeToString(shasum[:]),
		OriginalTimestamp: in.OriginalTimestamp,
		LocalFilename:     &local,
	})
	if err != nil {
		s.removeLocal(local)
		return nil, err
	}
	if err := s.categories.IncrementCounter(ctx, cat.ID, models.CounterItems, 1); err != nil {
		return nil, err
	}
	s.changed(ctx, cat.ID)

	slog.Info("item stored locally", "id", item.ID, "category", cat.ID, "size", item.SizeBytes, "content_type", contentType)

	accountID, err := s.capacity.Reserve(ctx, item.SizeBytes, item.Kind())
	switch {
	case errors.Is(err, capacity.ErrNoCapacity):
		s.discardPending(ctx, item)
		return nil, err
	case err != nil:
		slog.Warn("capacity reservation deferred", "item", item.ID, "error", err)
		s.enqueue(s.transferJob(item.ID, nil))
	default:
		s.enqueue(s.transferJob(item.ID, &Reservation{AccountID: accountID, Size: item.SizeBytes}))
	}
	return item, nil
}

// discardPending drops an item that will never be transferred.
func (s *Service) discardPending(ctx context.Context, item *models.Item) {
	if _, err := s.items.Delete(ctx, item.ID); err != nil {
		slog.Error("discard pending item", "id", item.ID, "error", err)
		return
	}
	if err := s.categories.IncrementCounter(ctx, item.CategoryID, models.CounterItems, -1); err != nil {
		slog.Error("discard pending item counter", "id", item.ID, "error", err)
	}
	s.changed(ctx, item.CategoryID)
	if item.LocalFilename != nil {
		s.removeLocal(*item.LocalFilename)
	}
}

// Reservation is capacity debited on an account for one transfer.
type Reservation struct {
	AccountID uuid.UUID
	Size      int64
}

// transferJob wraps Transfer so that retries reuse the first successful
// reservation.
func (s *Service) transferJob(itemID uuid.UUID, r *Reservation) jobs.Job {
	reserved := r
	return jobs.Job{
		Name: "transfer item " + itemID.String(),
		Run: func(ctx context.Context) error {
			var err error
			reserved, err = s.Transfer(ctx, itemID, reserved)
			return err
		},
	}
}

// Transfer uploads a pending item to the reserved account, reserving
// capacity first when r is nil, then marks it remote, removes the local
// copy and runs the eligibility walk. Running it again for an item that is
// already remote only repeats the walk. A pending item no account has room
// for is discarded, as during the upload request. The returned reservation is still
// held after a retryable failure so the next attempt can reuse it; every
// other failure credits it back.
func (s *Service) Transfer(ctx context.Context, itemID uuid.UUID, r *Reservation) (*Reservation, error) {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return r, fmt.Errorf("load item: %w", err)
	}
	if item == nil || item.IsRemote() {
		s.credit(ctx, r, itemID)
		if item == nil {
			return nil, nil
		}
		return nil, s.engine.OnItemBecameEligible(ctx, item.ID)
	}

	if r == nil {
		accountID, err := s.capacity.Reserve(ctx, item.SizeBytes, item.Kind())
		if errors.Is(err, capacity.ErrNoCapacity) {
			slog.Warn("no capacity for pending item, discarding", "id", item.ID, "size", item.SizeBytes, "kind", item.Kind())
			s.discardPending(ctx, item)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		r = &Reservation{AccountID: accountID, Size: item.SizeBytes}
	}

	account, err := s.accounts.FindByID(ctx, r.AccountID)
	if err != nil {
		return r, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("storage account %s: %w", r.AccountID, ErrNotFound)
	}

	key := storage.ObjectKey(item, s.now())
	if err := s.upload(ctx, account, key, item); err != nil {
		if storage.IsRetryable(err) {
			return r, err
		}
		s.credit(ctx, r, item.ID)
		return nil, err
	}

	ok, err := s.items.MarkRemote(ctx, item.ID, account.ID, key)
	if err != nil {
		return r, fmt.Errorf("mark item remote: %w", err)
	}
	if !ok {
		slog.Info("item gone after upload, removing remote copy", "id", item.ID, "key", key)
		s.enqueue(s.removeRemoteJob(account.ID, key))
		s.credit(ctx, r, item.ID)
		return nil, nil
	}
	s.removeLocal(*item.LocalFilename)

	slog.Info("item transferred", "id", item.ID, "account", account.Login, "key", key)
	return nil, s.engine.OnItemBecameEligible(ctx, item.ID)
}

func (s *Service) upload(ctx context.Context, account *models.StorageAccount, key string, item *models.Item) error {
	file, err := os.Open(s.localPath(*item.LocalFilename))
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer file.Close()
	return s.remote.Upload(ctx, account, key, item.ContentType, file, item.SizeBytes)
}

func (s *Service) credit(ctx context.Context, r *Reservation, itemID uuid.UUID) {
	if r == nil {
		return
	}
	if err := s.capacity.Credit(ctx, r.AccountID, r.Size); err != nil {
		slog.Error("credit reservation back", "account", r.AccountID, "item", itemID, "error", err)
	}
}

// ImportInput describes a file already present in remote storage.
type ImportInput struct {
	CategoryID        uuid.UUID  `json:"category_id"`
	AccountID         uuid.UUID  `json:"account_id"`
	Location          string     `json:"location"`
	Name              string     `json:"name"`
	OriginalFilename  string     `json:"original_filename"`
	ContentType       string     `json:"content_type"`
	SizeBytes         int64      `json:"size_bytes"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	MD5               string     `json:"md5"`
	SHA256            string     `json:"sha256"`
	OriginalTimestamp *time.Time `json:"original_timestamp"`
}

// Import creates an item that is remote from the start and runs the
// eligibility walk for it.
func (s *Service) Import(ctx context.Context, in ImportInput) (*models.Item, error) {
	switch {
	case strings.TrimSpace(in.Location) == "":
		return nil, invalid("location", "is required")
	case in.MD5 == "" || in.SHA256 == "":
		return nil, invalid("digests", "md5 and sha256 are required")
	case !isHexDigest(in.MD5, md5.Size):
		return nil, invalid("md5", "must be %d hex characters", 2*md5.Size)
	case !isHexDigest(in.SHA256, sha256.Size):
		return nil, invalid("sha256", "must be %d hex characters", 2*sha256.Size)
	case in.SizeBytes < 0:
		return nil, invalid("size_bytes", "must not be negative")
	}

	cat, err := s.categories.FindByID(ctx, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("load category: %w", err)
	}
	if cat == nil {
		return nil, fmt.Errorf("category %s: %w", in.CategoryID, ErrNotFound)
	}
	account, err := s.accounts.FindByID(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("storage account %s: %w", in.AccountID, ErrNotFound)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(in.OriginalFilename, filepath.Ext(in.OriginalFilename))
	}
	location := strings.TrimSpace(in.Location)

	item, err := s.items.Create(ctx, &models.Item{
		CategoryID:        cat.ID,
		Name:              name,
		OriginalFilename:  in.OriginalFilename,
		ContentType:       in.ContentType,
		SizeBytes:         in.SizeBytes,
		Width:             in.Width,
		Height:            in.Height,
		MD5:               strings.ToLower(in.MD5),
		SHA256:            strings.ToLower(in.SHA256),
		OriginalTimestamp: in.OriginalTimestamp,
		AccountID:         &account.ID,
		StorageFilename:   &location,
	})
	if err != nil {
		return nil, err
	}
	if err := s.categories.IncrementCounter(ctx, cat.ID, models.CounterItems, 1); err != nil {
		return nil, err
	}
	s.changed(ctx, cat.ID)

	s.propagate(ctx, "promote item "+item.ID.String(), func(ctx context.Context) error {
		return s.engine.OnItemBecameEligible(ctx, item.ID)
	})

	slog.Info("item imported", "id", item.ID, "category", cat.ID, "account", account.Login)
	return item, nil
}

func isHexDigest(s string, size int) bool {
	if len(s) != 2*size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// MoveItem reassigns an item to another category.
func (s *Service) MoveItem(ctx context.Context, itemID, categoryID uuid.UUID) (*models.Item, error) {
	cat, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load category: %w", err)
	}
	if cat == nil {
		return nil, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
	}

	old, err := s.items.Move(ctx, itemID, categoryID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if *old == categoryID || item == nil {
		return item, nil
	}

	if err := s.categories.IncrementCounter(ctx, *old, models.CounterItems, -1); err != nil {
		return nil, err
	}
	if err := s.categories.IncrementCounter(ctx, categoryID, models.CounterItems, 1); err != nil {
		return nil, err
	}
	s.changed(ctx, *old, categoryID)

	if item.IsRemote() {
		from := *old
		s.propagate(ctx, "reparent item "+itemID.String(), func(ctx context.Context) error {
			return s.engine.OnItemReparented(ctx, itemID, from, categoryID)
		})
	}

	slog.Info("item moved", "id", itemID, "from", *old, "to", categoryID)
	return item, nil
}

// DeleteItem removes an item. A remote item's file is removed from its
// account by a deferred job; a pending item's local file right away.
func (s *Service) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.items.Delete(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}

	if err := s.categories.IncrementCounter(ctx, item.CategoryID, models.CounterItems, -1); err != nil {
		return err
	}
	s.changed(ctx, item.CategoryID)

	if item.IsRemote() {
		s.propagate(ctx, "demote item "+itemID.String(), func(ctx context.Context) error {
			return s.engine.OnItemLeftCategory(ctx, item.CategoryID, itemID)
		})
		s.enqueue(s.removeRemoteJob(*item.AccountID, *item.StorageFilename))
	} else if item.LocalFilename != nil {
		s.removeLocal(*item.LocalFilename)
	}

	slog.Info("item deleted", "id", itemID, "category", item.CategoryID)
	return nil
}

func (s *Service) removeRemoteJob(accountID uuid.UUID, key string) jobs.Job {
	return jobs.Job{
		Name: "remove remote file " + key,
		Run: func(ctx context.Context) error {
			account, err := s.accounts.FindByID(ctx, accountID)
			if err != nil {
				return fmt.Errorf("load account: %w", err)
			}
			if account == nil {
				return nil
			}
			return s.remote.Delete(ctx, account, key)
		},
	}
}

// ResumePending schedules a transfer for every item still waiting for its
// upload, such as those interrupted by a restart.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.items.ListPending(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending items: %w", err)
	}
	for _, item := range pending {
		s.enqueue(s.transferJob(item.ID, nil))
	}
	if len(pending) > 0 {
		slog.Info("resumed pending transfers", "count", len(pending))
	}
	return len(pending), nil
}

// propagate runs a main item walk now and falls back to a deferred job
// when it fails, so the request that triggered it still succeeds.
func (s *Service) propagate(ctx context.Context, name string, walk func(ctx context.Context) error) {
	if err := walk(ctx); err != nil {
		slog.Warn("main item walk deferred", "job", name, "error", err)
		s.enqueue(jobs.Job{Name: name, Run: walk})
	}
}

func (s *Service) enqueue(job jobs.Job) {
	if err := s.queue.Enqueue(job); err != nil {
		slog.Error("enqueue job", "job", job.Name, "error", err)
	}
}

func (s *Service) localPath(name string) string {
	return filepath.Join(s.uploadDir, name)
}

func (s *Service) removeLocal(name string) {
	if err := os.Remove(s.localPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("remove local file", "file", name, "error", err)
	}
}
