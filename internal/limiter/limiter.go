// Package limiter caps the number of concurrent subscriber connections,
// globally and per source IP.
package limiter

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ctfanout/ctstream/internal/config"
	"github.com/ctfanout/ctstream/internal/metrics"
)

// ConnectionLimiter enforces a total connection cap and, optionally, a
// per-IP cap on top of it.
type ConnectionLimiter struct {
	enabled        bool
	maxConnections uint32
	perIPLimit     uint32

	total  atomic.Uint32
	mu     sync.Mutex
	perIP  map[string]uint32
}

// New builds a ConnectionLimiter from configuration.
func New(cfg config.ConnectionLimit) *ConnectionLimiter {
	return &ConnectionLimiter{
		enabled:        cfg.Enabled,
		maxConnections: cfg.MaxConnections,
		perIPLimit:     cfg.PerIPLimit,
		perIP:          make(map[string]uint32),
	}
}

// TryAcquire attempts to reserve a connection slot for ip. A disabled
// limiter always succeeds. Every successful TryAcquire must be matched
// with a Release.
func (l *ConnectionLimiter) TryAcquire(ip string) bool {
	if !l.enabled {
		return true
	}

	for {
		current := l.total.Load()
		if current >= l.maxConnections {
			metrics.IncConnectionLimitRejected()
			return false
		}
		if l.total.CompareAndSwap(current, current+1) {
			break
		}
	}

	if l.perIPLimit == 0 {
		l.mu.Lock()
		l.perIP[ip]++
		l.mu.Unlock()
		return true
	}

	l.mu.Lock()
	if l.perIP[ip] >= l.perIPLimit {
		l.mu.Unlock()
		l.decrementTotal()
		metrics.IncPerIPLimitRejected()
		return false
	}
	l.perIP[ip]++
	l.mu.Unlock()

	return true
}

// Release gives back a slot reserved by TryAcquire. A disabled limiter's
// Release is a no-op, matching its TryAcquire. Idempotent-safe if
// double-called: decrementTotal saturates at zero instead of wrapping.
func (l *ConnectionLimiter) Release(ip string) {
	if !l.enabled {
		return
	}

	l.decrementTotal()

	l.mu.Lock()
	if n, ok := l.perIP[ip]; ok {
		if n <= 1 {
			delete(l.perIP, ip)
		} else {
			l.perIP[ip] = n - 1
		}
	}
	l.mu.Unlock()
}

// decrementTotal decrements the total counter by one, saturating at zero so
// a double Release can never wrap a uint32 around to a huge value and
// permanently defeat the connection cap.
func (l *ConnectionLimiter) decrementTotal() {
	for {
		current := l.total.Load()
		if current == 0 {
			return
		}
		if l.total.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// RemoteIP extracts the bare IP from an *http.Request's RemoteAddr, falling
// back to the raw value when it isn't a host:port pair.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
