// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the JSON API over the catalog.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"photostore/internal/capacity"
	"photostore/internal/catalog"
	"photostore/internal/lock"
	"photostore/internal/models"
	"photostore/internal/store"
)

// maxUploadSize caps a single uploaded file.
const maxUploadSize = 100 << 20

// CategoryReader reads the category tree.
type CategoryReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	Tree(ctx context.Context) ([]models.Category, error)
}

// ItemReader reads items.
type ItemReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	ListEligible(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]models.Item, error)
}

// AccountReader reads storage accounts.
type AccountReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.StorageAccount, error)
	List(ctx context.Context) ([]models.StorageAccount, error)
}

// RefreshScheduler queues capacity refreshes.
type RefreshScheduler interface {
	EnqueueOne(accountID uuid.UUID, login string) error
}

// ViewCache holds encoded category views.
type ViewCache interface {
	Get(ctx context.Context, id uuid.UUID) ([]byte, bool)
	Set(ctx context.Context, id uuid.UUID, data []byte)
}

// API groups the JSON endpoints.
type API struct {
	catalog    *catalog.Service
	categories CategoryReader
	items      ItemReader
	accounts   AccountReader
	refresh    RefreshScheduler
	cache      ViewCache
}

// NewAPI creates the API handlers. cache may be nil.
func NewAPI(svc *catalog.Service, categories CategoryReader, items ItemReader, accounts AccountReader, refresh RefreshScheduler, cache ViewCache) *API {
	return &API{
		catalog:    svc,
		categories: categories,
		items:      items,
		accounts:   accounts,
		refresh:    refresh,
		cache:      cache,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps an error from the catalog onto a response.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var ve *catalog.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, ve.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, "already exists", http.StatusConflict)
	case errors.Is(err, capacity.ErrNoCapacity):
		writeError(w, "no storage account available", http.StatusInsufficientStorage)
	case errors.Is(err, lock.ErrTimeout):
		w.Header().Set("Retry-After", "5")
		writeError(w, "busy, try again later", http.StatusServiceUnavailable)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// pathID parses a uuid URL parameter, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON reads a JSON request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
