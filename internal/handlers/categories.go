// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"photostore/internal/catalog"
	"photostore/internal/models"
)

// Paging limits for item listings.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// categoryView is a category together with its resolved main item.
type categoryView struct {
	models.Category
	MainItem *models.Item `json:"main_item"`
}

// CategoryTree returns all categories nested by parent.
func (a *API) CategoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := a.categories.Tree(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if tree == nil {
		tree = []models.Category{}
	}
	writeJSON(w, http.StatusOK, tree)
}

// CategoryCreate adds a category.
func (a *API) CategoryCreate(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewCategory
	if !decodeJSON(w, r, &in) {
		return
	}
	created, err := a.catalog.CreateCategory(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// CategoryShow returns one category with its main item. The encoded view
// is served from the cache when present.
func (a *API) CategoryShow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	if a.cache != nil {
		if data, hit := a.cache.Get(ctx, id); hit {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("X-Cache", "HIT")
			w.Write(data)
			return
		}
	}

	cat, err := a.categories.FindByID(ctx, id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if cat == nil {
		writeError(w, "category not found", http.StatusNotFound)
		return
	}

	view := categoryView{Category: *cat}
	if cat.MainItemID != nil {
		view.MainItem, err = a.items.FindByID(ctx, *cat.MainItemID)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
	}

	data, err := json.Marshal(view)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if a.cache != nil {
		a.cache.Set(ctx, id, data)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Cache", "MISS")
	if _, err := w.Write(data); err != nil {
		slog.Debug("write category view", "error", err)
	}
}

// CategoryItems lists the remote items of a category in capture order.
func (a *API) CategoryItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultPageSize)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	if limit < 1 || limit > maxPageSize {
		writeError(w, "limit must be between 1 and 200", http.StatusBadRequest)
		return
	}
	if offset < 0 {
		writeError(w, "offset must not be negative", http.StatusBadRequest)
		return
	}

	cat, err := a.categories.FindByID(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if cat == nil {
		writeError(w, "category not found", http.StatusNotFound)
		return
	}

	items, err := a.items.ListEligible(r.Context(), id, limit, offset)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, "invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
