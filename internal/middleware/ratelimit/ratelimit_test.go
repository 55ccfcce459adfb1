package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 3, CleanupInterval: time.Minute})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d was rejected, limit is 3", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("fourth request in the window was allowed")
	}

	// A different client has its own window
	if !rl.Allow("10.0.0.2") {
		t.Error("first request from a second client was rejected")
	}

	metrics := rl.GetMetrics()
	if metrics.TotalHits != 1 {
		t.Errorf("TotalHits = %d, want 1", metrics.TotalHits)
	}
	if metrics.ClientCount != 2 {
		t.Errorf("ClientCount = %d, want 2", metrics.ClientCount)
	}
}

func TestLimiterMiddlewareRejects(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware(
		func(r *http.Request) string { return "10.0.0.1" },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/stats/portal-overview", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/stats/portal-overview", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", second.Header().Get("Retry-After"))
	}
}

func TestLimiterZeroConfigFallsBack(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") {
		t.Error("default config rejected the first request")
	}
}
