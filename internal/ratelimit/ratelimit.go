// Package ratelimit throttles incoming HTTP requests, including stream
// connection attempts, with a token bucket keyed by source IP.
package ratelimit

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ctfanout/ctstream/internal/config"
	"github.com/ctfanout/ctstream/internal/limiter"
)

// Limiter hands out one token-bucket rate.Limiter per source IP.
type Limiter struct {
	enabled    bool
	perSecond  rate.Limit
	burstSize  int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a Limiter from configuration.
func New(cfg config.RateLimit) *Limiter {
	return &Limiter{
		enabled:   cfg.Enabled,
		perSecond: rate.Limit(cfg.PerSecond),
		burstSize: int(cfg.BurstSize),
		buckets:   make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a single event from ip may proceed right now, never
// blocking.
func (l *Limiter) Allow(ip string) bool {
	if !l.enabled {
		return true
	}
	return l.bucketFor(ip).Allow()
}

func (l *Limiter) bucketFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = rate.NewLimiter(l.perSecond, l.burstSize)
		l.buckets[ip] = b
	}
	return b
}

// Middleware rejects with 429 once an IP exceeds its rate.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.RemoteIP(r)
		if !l.Allow(ip) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
