// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// categoryKeyPrefix is the Valkey key prefix for cached category views.
	categoryKeyPrefix = "view:category:"

	// DefaultCategoryTTL bounds staleness if an invalidation is lost.
	DefaultCategoryTTL = 5 * time.Minute
)

// CategoryCache stores the encoded JSON view of single categories. Entries
// are dropped whenever a category's main item or counters change.
type CategoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCategoryCache creates a category cache backed by the given Valkey client.
func NewCategoryCache(client *redis.Client, ttl time.Duration) *CategoryCache {
	if ttl == 0 {
		ttl = DefaultCategoryTTL
	}
	return &CategoryCache{client: client, ttl: ttl}
}

func categoryKey(id uuid.UUID) string {
	return categoryKeyPrefix + id.String()
}

// Get returns the cached view of a category.
func (cc *CategoryCache) Get(ctx context.Context, id uuid.UUID) ([]byte, bool) {
	val, err := cc.client.Get(ctx, categoryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("category cache get error", "category", id, "error", err)
		return nil, false
	}
	slog.Debug("category cache hit", "category", id)
	return val, true
}

// Set stores the view of a category with the configured TTL.
func (cc *CategoryCache) Set(ctx context.Context, id uuid.UUID, data []byte) {
	if err := cc.client.Set(ctx, categoryKey(id), data, cc.ttl).Err(); err != nil {
		slog.Warn("category cache set error", "category", id, "error", err)
	}
}

// Invalidate drops a single category view.
func (cc *CategoryCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := cc.client.Del(ctx, categoryKey(id)).Err(); err != nil {
		slog.Warn("category cache invalidate error", "category", id, "error", err)
		return
	}
	slog.Debug("category cache invalidated", "category", id)
}

// InvalidateAll removes every cached category view by scanning for the prefix.
func (cc *CategoryCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := cc.client.Scan(ctx, cursor, categoryKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("category cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := cc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("category cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("category cache cleared", "deleted", deleted)
	}
}
