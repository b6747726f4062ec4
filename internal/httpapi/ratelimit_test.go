package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenLimiterRefills(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 2, func() time.Time { return now })

	if !limiter.allow("k") || !limiter.allow("k") {
		t.Fatalf("burst of 2 should be allowed")
	}
	if limiter.allow("k") {
		t.Fatalf("third request should be limited")
	}
	if !limiter.allow("other") {
		t.Fatalf("keys should not share buckets")
	}
	now = now.Add(time.Second)
	if !limiter.allow("k") {
		t.Fatalf("one token should refill after a second")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 60, IPBurst: 1, UserPerMinute: 60, UserBurst: 5})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "192.168.1.9, 10.0.0.1")
	if got := clientIP(req); got != "192.168.1.9" {
		t.Fatalf("expected forwarded ip, got %q", got)
	}
}
