// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resource kinds a storage account can accept.
const (
	KindPhoto = "photo"
	KindOther = "other"
)

// StorageAccount is a remote storage quota unit items are uploaded against.
// RemainingBytes is a cached figure: debited optimistically on reservation
// and overwritten by the capacity refresh.
type StorageAccount struct {
	ID             uuid.UUID  `json:"id"`
	Login          string     `json:"login"`
	Endpoint       string     `json:"endpoint"`
	Region         string     `json:"region"`
	Bucket         string     `json:"bucket"`
	AccessKey      string     `json:"-"`
	SecretKey      string     `json:"-"`
	QuotaBytes     int64      `json:"quota_bytes"`
	RemainingBytes int64      `json:"remaining_bytes"`
	Kinds          []string   `json:"kinds"`
	RefreshedAt    *time.Time `json:"refreshed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Accepts reports whether the account stores resources of the given kind.
func (a *StorageAccount) Accepts(kind string) bool {
	return slices.Contains(a.Kinds, kind)
}

// JoinKinds encodes kinds for the comma-separated kinds column.
func JoinKinds(kinds []string) string {
	return strings.Join(kinds, ",")
}

// SplitKinds decodes the comma-separated kinds column.
func SplitKinds(s string) []string {
	var kinds []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ValidKind reports whether kind is one the catalog knows about.
func ValidKind(kind string) bool {
	return kind == KindPhoto || kind == KindOther
}
