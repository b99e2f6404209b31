// Package auth implements the bearer-token gate guarding subscriber
// connections when enabled. It is a boundary collaborator, not part of the
// CT pipeline itself: the watcher and bus know nothing about it.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ctfanout/ctstream/internal/config"
	"github.com/ctfanout/ctstream/internal/metrics"
)

// Checker validates bearer tokens against a configured allow-list.
type Checker struct {
	enabled    bool
	tokens     [][]byte
	headerName string
}

// New builds a Checker from Auth configuration.
func New(cfg config.Auth) *Checker {
	tokens := make([][]byte, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		tokens[i] = []byte(t)
	}
	return &Checker{
		enabled:    cfg.Enabled,
		tokens:     tokens,
		headerName: cfg.HeaderName,
	}
}

// Validate reports whether token (the raw header value, "Bearer "-prefixed
// or not) matches one of the configured tokens. Disabled checkers accept
// everything; a missing token is rejected whenever auth is enabled.
func (c *Checker) Validate(token string) bool {
	if !c.enabled {
		return true
	}
	if token == "" {
		return false
	}

	value := strings.TrimPrefix(token, "Bearer ")
	candidate := []byte(value)

	for _, stored := range c.tokens {
		if len(stored) == len(candidate) && subtle.ConstantTimeCompare(stored, candidate) == 1 {
			return true
		}
	}
	return false
}

// Middleware wraps next with the bearer-token check, rejecting with 401
// when validation fails. Disabled checkers pass every request through
// unchanged.
func (c *Checker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !c.Validate(r.Header.Get(c.headerName)) {
			metrics.IncAuthRejected()
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
