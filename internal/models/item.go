// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Image content types the catalog accepts. Only JPEG and PNG count as
// photos when picking a storage account.
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeWebP = "image/webp"
)

// Item is a media record owned by exactly one category. It is either
// pending local transfer (LocalFilename set) or stored remotely
// (AccountID and StorageFilename set), never both.
type Item struct {
	ID                uuid.UUID  `json:"id"`
	CategoryID        uuid.UUID  `json:"category_id"`
	Name              string     `json:"name"`
	OriginalFilename  string     `json:"original_filename"`
	ContentType       string     `json:"content_type"`
	SizeBytes         int64      `json:"size_bytes"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	MD5               string     `json:"md5"`
	SHA256            string     `json:"sha256"`
	OriginalTimestamp *time.Time `json:"original_timestamp"`
	LocalFilename     *string    `json:"-"`
	AccountID         *uuid.UUID `json:"account_id,omitempty"`
	StorageFilename   *string    `json:"storage_filename,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsRemote reports whether the item has been transferred to remote storage.
// Only remote items are eligible to become a category's main item.
func (i *Item) IsRemote() bool {
	return i.AccountID != nil && i.StorageFilename != nil
}

// IsPending reports whether the item still waits for its upload.
func (i *Item) IsPending() bool {
	return i.LocalFilename != nil
}

// Kind returns the resource kind used to pick a storage account.
func (i *Item) Kind() string {
	return KindFor(i.ContentType)
}

// CheckStorageState verifies exactly one of the local and remote locations is set.
func (i *Item) CheckStorageState() error {
	local := i.LocalFilename != nil
	remote := i.AccountID != nil || i.StorageFilename != nil
	if local == remote {
		return fmt.Errorf("item %s: exactly one of local or remote location must be set", i.ID)
	}
	if remote && !i.IsRemote() {
		return fmt.Errorf("item %s: remote location needs both account and storage filename", i.ID)
	}
	return nil
}

// KindFor maps a content type onto a resource kind.
func KindFor(contentType string) string {
	switch contentType {
	case ContentTypeJPEG, ContentTypePNG:
		return KindPhoto
	default:
		return KindOther
	}
}

// ItemLess orders items by capture timestamp ascending with missing
// timestamps first, then by id. The first item in this order is the one
// promoted to main item.
func ItemLess(a, b *Item) bool {
	switch {
	case a.OriginalTimestamp == nil && b.OriginalTimestamp != nil:
		return true
	case a.OriginalTimestamp != nil && b.OriginalTimestamp == nil:
		return false
	case a.OriginalTimestamp != nil && b.OriginalTimestamp != nil &&
		!a.OriginalTimestamp.Equal(*b.OriginalTimestamp):
		return a.OriginalTimestamp.Before(*b.OriginalTimestamp)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
