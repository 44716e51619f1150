package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testValkey connects to the test Valkey (DB 15), skipping when it is down.
func testValkey(t *testing.T) *redis.Client {
	t.Helper()
	host := os.Getenv("VALKEY_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("VALKEY_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: os.Getenv("VALKEY_PASSWORD"),
		DB:       15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping: Valkey not reachable: %v", err)
	}
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), rateLimitKeyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})
	return client
}

func TestRateLimiter_LocalWindow(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(nil, "upload", 3, 100*time.Millisecond)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.allow(ctx, "10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow(ctx, "10.0.0.1") {
		t.Error("4th request should be rate-limited")
	}
	if !rl.allow(ctx, "10.0.0.2") {
		t.Error("a different client has its own window")
	}

	time.Sleep(150 * time.Millisecond)
	if !rl.allow(ctx, "10.0.0.1") {
		t.Error("should be allowed again after the window passed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(nil, "upload", 10, 200*time.Millisecond)
	defer rl.Stop()

	rl.allow(ctx, "stale")
	rl.allow(ctx, "fresh")
	time.Sleep(250 * time.Millisecond)
	rl.allow(ctx, "fresh")

	rl.cleanup()

	rl.mu.RLock()
	_, staleExists := rl.clients["stale"]
	_, freshExists := rl.clients["fresh"]
	rl.mu.RUnlock()

	if staleExists {
		t.Error("stale entry should have been removed")
	}
	if !freshExists {
		t.Error("fresh entry should be kept")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(nil, "upload", 2, time.Minute)
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/categories/x/items", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := send(); rr.Code != http.StatusAccepted {
			t.Fatalf("request %d: got status %d, want 202", i+1, rr.Code)
		}
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After: got %q, want 60", got)
	}
}

func TestRateLimiter_SharedWindow(t *testing.T) {
	client := testValkey(t)
	ctx := context.Background()

	// Two limiters stand in for two server instances.
	a := NewRateLimiter(client, "upload-test", 3, time.Minute)
	b := NewRateLimiter(client, "upload-test", 3, time.Minute)
	defer a.Stop()
	defer b.Stop()

	now := time.Now()
	for i, rl := range []*RateLimiter{a, b, a} {
		ok, err := rl.allowShared(ctx, "10.0.0.9", now)
		if err != nil {
			t.Fatalf("allowShared: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, err := b.allowShared(ctx, "10.0.0.9", now)
	if err != nil {
		t.Fatalf("allowShared: %v", err)
	}
	if ok {
		t.Error("the shared count should reject the 4th request")
	}

	ok, err = a.allowShared(ctx, "10.0.0.9", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("allowShared: %v", err)
	}
	if !ok {
		t.Error("the next window starts a fresh count")
	}
}

func TestRateLimiter_FallsBackWhenValkeyIsDown(t *testing.T) {
	captureLog(t)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	rl := NewRateLimiter(client, "upload", 1, time.Minute)
	defer rl.Stop()

	ctx := context.Background()
	if !rl.allow(ctx, "10.0.0.1") {
		t.Fatal("first request should be allowed by the local window")
	}
	if rl.allow(ctx, "10.0.0.1") {
		t.Error("second request should be limited by the local window")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"x-forwarded-for single", "10.0.0.1", "", "192.168.1.1:1234", "10.0.0.1"},
		{"x-forwarded-for chain", "10.0.0.1, 172.16.0.1", "", "192.168.1.1:1234", "10.0.0.1"},
		{"x-real-ip", "", "10.0.0.2", "192.168.1.1:1234", "10.0.0.2"},
		{"remote addr", "", "", "192.168.1.1:1234", "192.168.1.1"},
		{"remote addr without port", "", "", "192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
