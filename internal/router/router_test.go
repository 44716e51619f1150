// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router tests verify the route table, the middleware chains, and
// the health endpoint.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"photostore/internal/capacity"
	"photostore/internal/catalog"
	"photostore/internal/handlers"
	"photostore/internal/lock"
	"photostore/internal/mainitem"
	"photostore/internal/middleware"
	"photostore/internal/store/memstore"
)

type noopScheduler struct{}

func (noopScheduler) EnqueueOne(uuid.UUID, string) error { return nil }

func newTestAPI() *handlers.API {
	db := memstore.New()
	locker := lock.NewLocalLocker()
	opts := lock.Options{Block: time.Second, Lease: time.Minute}
	svc := catalog.New(catalog.Deps{
		Categories: db.Categories(),
		Items:      db.Items(),
		Accounts:   db.Accounts(),
		Engine:     mainitem.New(db.Categories(), db.Items(), locker, opts),
		Capacity:   capacity.NewSelector(db.Accounts(), locker, opts),
	})
	return handlers.NewAPI(svc, db.Categories(), db.Items(), db.Accounts(), noopScheduler{}, nil)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   int
		body   map[string]string
	}{
		{"no checks", nil, http.StatusOK, map[string]string{"status": "ok"}},
		{
			"all healthy",
			map[string]Check{"postgres": func(context.Context) error { return nil }},
			http.StatusOK,
			map[string]string{"status": "ok", "postgres": "ok"},
		},
		{
			"one failing",
			map[string]Check{
				"postgres": func(context.Context) error { return nil },
				"valkey":   func(context.Context) error { return errors.New("connection refused") },
			},
			http.StatusServiceUnavailable,
			map[string]string{"status": "degraded", "postgres": "ok", "valkey": "unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			healthHandler(tt.checks)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type: got %q", ct)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			for k, v := range tt.body {
				if body[k] != v {
					t.Errorf("%s: got %q, want %q", k, body[k], v)
				}
			}
		})
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("token"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	r := New(newTestAPI(), Options{TokenHash: string(hash)})

	routes := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/categories"},
		{http.MethodPost, "/api/categories"},
		{http.MethodGet, "/api/categories/00000000-0000-0000-0000-000000000001"},
		{http.MethodGet, "/api/categories/00000000-0000-0000-0000-000000000001/items"},
		{http.MethodPost, "/api/categories/00000000-0000-0000-0000-000000000001/items"},
		{http.MethodPost, "/api/items/import"},
		{http.MethodGet, "/api/items/00000000-0000-0000-0000-000000000001"},
		{http.MethodPut, "/api/items/00000000-0000-0000-0000-000000000001/category"},
		{http.MethodDelete, "/api/items/00000000-0000-0000-0000-000000000001"},
		{http.MethodGet, "/api/accounts"},
		{http.MethodPost, "/api/accounts"},
		{http.MethodPost, "/api/accounts/00000000-0000-0000-0000-000000000001/refresh"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("without token: got %d, want 401", w.Code)
			}
		})
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("Authorization", "Bearer token")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token: got %d, want 200", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("secure headers should apply to API responses")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health without token: got %d, want 200", w.Code)
	}
}

func TestRoutes_UploadIsRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(nil, "upload", 1, time.Minute)
	defer rl.Stop()
	r := New(newTestAPI(), Options{UploadLimiter: rl})

	path := "/api/categories/00000000-0000-0000-0000-000000000001/items"
	upload := func() int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(""))
		req.RemoteAddr = "10.1.1.1:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := upload(); code == http.StatusTooManyRequests {
		t.Fatal("first upload should pass the limiter")
	}
	if code := upload(); code != http.StatusTooManyRequests {
		t.Errorf("second upload: got %d, want 429", code)
	}

	// Reads are not limited.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.1.1:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("listing items should not be rate limited")
		}
	}
}
