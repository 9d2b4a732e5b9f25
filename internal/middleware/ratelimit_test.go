package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(handler http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = ip + ":52341"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	handler := limitedHandler(NewRateLimiter(10, 10))

	for i := range 10 {
		if rec := hit(handler, "192.168.1.1"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	handler := limitedHandler(NewRateLimiter(10, 5))

	for range 5 {
		hit(handler, "192.168.1.1")
	}

	rec := hit(handler, "192.168.1.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterSetsHeaders(t *testing.T) {
	rec := hit(limitedHandler(NewRateLimiter(10, 10)), "192.168.1.1")

	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected X-RateLimit-Remaining header")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset header")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	handler := limitedHandler(NewRateLimiter(10, 2))

	for range 3 {
		hit(handler, "10.0.0.1")
	}

	if rec := hit(handler, "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("exhausted client: expected 429, got %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("fresh client: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	handler := limitedHandler(rl)

	hit(handler, "10.0.0.1")
	hit(handler, "10.0.0.2")
	if rl.Len() != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", rl.Len())
	}

	// Backdate both buckets so they look idle.
	rl.mu.Lock()
	for _, b := range rl.buckets {
		b.touched = time.Now().Add(-time.Hour)
	}
	rl.mu.Unlock()

	rl.evictIdle(10 * time.Minute)
	if rl.Len() != 0 {
		t.Fatalf("expected 0 tracked clients after eviction, got %d", rl.Len())
	}
}

func TestRateLimiterRejectsWhenFull(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	rl.maxClients = 1
	handler := limitedHandler(rl)

	if rec := hit(handler, "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", rec.Code)
	}
	if rec := hit(handler, "10.0.0.2"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second client at capacity: expected 429, got %d", rec.Code)
	}
}
