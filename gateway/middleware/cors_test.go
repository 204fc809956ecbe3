package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSDefaultsToAnyOrigin(t *testing.T) {
	handler := CORS(CORSConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatal("expected default methods header")
	}
}

func TestCORSEchoesAllowlistedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{
		AllowedOrigins:   []string{"https://dash.example.com", "https://ops.example.com"},
		AllowCredentials: true,
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Fatalf("expected request origin to be echoed, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
	if got := res.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", got)
	}
}

func TestCORSOmitsOriginHeaderForStrangers(t *testing.T) {
	handler := CORS(CORSConfig{
		AllowedOrigins: []string{"https://dash.example.com"},
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/aggregates", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header for unknown origin, got %q", got)
	}
}

func TestCORSShortCircuitsPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := CORS(CORSConfig{
		AllowedOrigins: []string{"https://dash.example.com"},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Authorization"},
	})(next)

	req := httptest.NewRequest(http.MethodOptions, "/v1/vault/deposit", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if called {
		t.Fatal("preflight must not reach the next handler")
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Fatalf("unexpected methods header %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Headers"); got != "Authorization" {
		t.Fatalf("unexpected headers header %q", got)
	}
}
