// Package router sets up the HTTP routes and middleware chains of the
// photostore API.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"photostore/internal/handlers"
	"photostore/internal/middleware"
)

// Check reports whether a backing service is reachable.
type Check func(ctx context.Context) error

// Options configures the router.
type Options struct {
	// TokenHash is the bcrypt hash of the API bearer token. Empty disables
	// authentication.
	TokenHash string

	// UploadLimiter limits uploads per client. Nil disables the limit.
	UploadLimiter *middleware.RateLimiter

	// Checks are run by /health, keyed by service name.
	Checks map[string]Check
}

// New creates and returns the configured Chi router.
func New(api *handlers.API, opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	// Health check, no auth.
	r.Get("/health", healthHandler(opts.Checks))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BearerAuth(opts.TokenHash))

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", api.CategoryTree)
			r.Post("/", api.CategoryCreate)
			r.Get("/{id}", api.CategoryShow)
			r.Get("/{id}/items", api.CategoryItems)
			r.With(limit(opts.UploadLimiter)).Post("/{id}/items", api.ItemUpload)
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/import", api.ItemImport)
			r.Get("/{id}", api.ItemShow)
			r.Put("/{id}/category", api.ItemMove)
			r.Delete("/{id}", api.ItemDelete)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", api.AccountsList)
			r.Post("/", api.AccountCreate)
			r.Post("/{id}/refresh", api.AccountRefresh)
		})
	})

	return r
}

func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}

// healthHandler answers 200 when every check passes and 503 otherwise.
func healthHandler(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
