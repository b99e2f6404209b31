package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ctfanout/ctstream/internal/config"
)

func TestDisabledCheckerAcceptsEverything(t *testing.T) {
	c := New(config.Auth{Enabled: false})
	if !c.Validate("") {
		t.Fatalf("disabled checker should accept an empty token")
	}
}

func TestValidatesBearerPrefixedToken(t *testing.T) {
	c := New(config.Auth{Enabled: true, Tokens: []string{"secret123"}})
	if !c.Validate("Bearer secret123") {
		t.Fatalf("expected the bearer-prefixed token to validate")
	}
	if !c.Validate("secret123") {
		t.Fatalf("expected the bare token to validate too")
	}
}

func TestRejectsWrongOrMissingToken(t *testing.T) {
	c := New(config.Auth{Enabled: true, Tokens: []string{"secret123"}})
	if c.Validate("") {
		t.Fatalf("empty token should be rejected when enabled")
	}
	if c.Validate("Bearer wrong") {
		t.Fatalf("wrong token should be rejected")
	}
}

func TestMiddlewareRejectsWithoutHeader(t *testing.T) {
	c := New(config.Auth{Enabled: true, Tokens: []string{"secret123"}, HeaderName: "Authorization"})
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewarePassesWithValidHeader(t *testing.T) {
	c := New(config.Auth{Enabled: true, Tokens: []string{"secret123"}, HeaderName: "Authorization"})
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
