// Package sse serves certificate update streams as Server-Sent Events.
package sse

import (
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ctfanout/ctstream/internal/bus"
	"github.com/ctfanout/ctstream/internal/certrecord"
	"github.com/ctfanout/ctstream/internal/limiter"
	"github.com/ctfanout/ctstream/internal/metrics"
)

const keepAliveInterval = 15 * time.Second

var connectionCount atomic.Int64

// Handler serves the SSE endpoint; the projection is selected per request
// by the "stream" query parameter (full, domains/domains-only, anything
// else falls back to lite), matching the original query-driven behavior.
type Handler struct {
	Hub     *bus.Hub
	Limiter *limiter.ConnectionLimiter
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ip := limiter.RemoteIP(r)
	if !h.Limiter.TryAcquire(ip) {
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}
	defer h.Limiter.Release(ip)

	projection := parseProjection(r.URL.Query().Get("stream"))

	sub := h.Hub.Subscribe()
	defer sub.Unsubscribe()

	connectionCount.Add(1)
	publishConnectionCount()
	defer func() {
		connectionCount.Add(-1)
		publishConnectionCount()
	}()

	log.Printf("sse: client connected (%s), ip=%s, total=%d", projectionName(projection), ip, connectionCount.Load())
	defer log.Printf("sse: client disconnected, ip=%s, total=%d", ip, connectionCount.Load())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if lagged := sub.Lagged(); lagged > 0 {
				log.Printf("sse: client lagged, dropped %d messages", lagged)
			}
			fmt.Fprintf(w, "data: %s\n\n", env.Bytes(projection))
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

func parseProjection(stream string) certrecord.Projection {
	switch stream {
	case "full":
		return certrecord.Full
	case "domains", "domains-only":
		return certrecord.Domains
	default:
		return certrecord.Lite
	}
}

func projectionName(p certrecord.Projection) string {
	switch p {
	case certrecord.Full:
		return "full"
	case certrecord.Domains:
		return "domains"
	default:
		return "lite"
	}
}

func publishConnectionCount() {
	metrics.SetActiveSubscribers("sse", float64(connectionCount.Load()))
}
