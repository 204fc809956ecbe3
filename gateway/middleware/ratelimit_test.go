package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"vault": {RequestsPerMinute: 60, Burst: 1},
	})

	handler := limiter.Middleware("vault")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRouteGroups(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"vault": {RequestsPerMinute: 60, Burst: 1},
		"admin": {RequestsPerMinute: 60, Burst: 1},
	})

	vaultHandler := limiter.Middleware("vault")(okHandler())
	adminHandler := limiter.Middleware("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	res := httptest.NewRecorder()
	vaultHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected vault request to succeed, got %d", res.Code)
	}

	adminReq := httptest.NewRequest(http.MethodPost, "/v1/admin/topup", nil)
	adminRes := httptest.NewRecorder()
	adminHandler.ServeHTTP(adminRes, adminReq)
	if adminRes.Code != http.StatusOK {
		t.Fatalf("expected admin bucket to be independent, got %d", adminRes.Code)
	}

	adminRes = httptest.NewRecorder()
	adminHandler.ServeHTTP(adminRes, adminReq)
	if adminRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second admin request to hit the limit, got %d", adminRes.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"vault": {RequestsPerMinute: 60, Burst: 1},
	})

	handler := limiter.Middleware("vault")(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	reqA.Header.Set("X-Real-IP", "203.0.113.7")
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusOK {
		t.Fatalf("expected client A to succeed, got %d", resA.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	reqB.Header.Set("X-Real-IP", "203.0.113.8")
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)
	if resB.Code != http.StatusOK {
		t.Fatalf("expected client B to have its own bucket, got %d", resB.Code)
	}

	resA = httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusTooManyRequests {
		t.Fatalf("expected client A to be exhausted, got %d", resA.Code)
	}
}

func TestRateLimiterUsesForwardedForHop(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"vault": {RequestsPerMinute: 60, Burst: 1},
	})

	handler := limiter.Middleware("vault")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the same forwarded hop to share a bucket, got %d", res.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	other.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	otherRes := httptest.NewRecorder()
	handler.ServeHTTP(otherRes, other)
	if otherRes.Code != http.StatusOK {
		t.Fatalf("expected a different hop to get a fresh bucket, got %d", otherRes.Code)
	}
}

func TestRateLimiterSkipsUnconfiguredRoute(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{})

	handler := limiter.Middleware("vault")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected unthrottled route to pass, got %d", res.Code)
		}
	}
}
