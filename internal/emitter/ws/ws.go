// Package ws serves certificate update streams over WebSocket: one
// full/lite/domains-only stream per connection, with a 30-second heartbeat
// and ping/pong keepalive.
package ws

import (
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ctfanout/ctstream/internal/bus"
	"github.com/ctfanout/ctstream/internal/certrecord"
	"github.com/ctfanout/ctstream/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConnectionCounter tracks how many clients are connected to each
// projection, for the /metrics surface and the connect/disconnect log lines.
type ConnectionCounter struct {
	full    atomic.Uint64
	lite    atomic.Uint64
	domains atomic.Uint64
}

func (c *ConnectionCounter) increment(p certrecord.Projection) {
	switch p {
	case certrecord.Full:
		c.full.Add(1)
	case certrecord.Domains:
		c.domains.Add(1)
	default:
		c.lite.Add(1)
	}
	c.publish()
}

func (c *ConnectionCounter) decrement(p certrecord.Projection) {
	switch p {
	case certrecord.Full:
		c.full.Add(^uint64(0))
	case certrecord.Domains:
		c.domains.Add(^uint64(0))
	default:
		c.lite.Add(^uint64(0))
	}
	c.publish()
}

func (c *ConnectionCounter) publish() {
	metrics.SetActiveSubscribers("websocket_full", float64(c.full.Load()))
	metrics.SetActiveSubscribers("websocket_lite", float64(c.lite.Load()))
	metrics.SetActiveSubscribers("websocket_domains", float64(c.domains.Load()))
}

// Total returns the number of connected WebSocket clients across all
// projections.
func (c *ConnectionCounter) Total() uint64 {
	return c.full.Load() + c.lite.Load() + c.domains.Load()
}

// Handler serves one projection's WebSocket endpoint.
type Handler struct {
	Hub        *bus.Hub
	Counter    *ConnectionCounter
	Projection certrecord.Projection
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.Hub.Subscribe()
	defer sub.Unsubscribe()

	h.Counter.increment(h.Projection)
	defer h.Counter.decrement(h.Projection)

	log.Printf("ws: client connected (%s), total=%d", projectionName(h.Projection), h.Counter.Total())
	defer log.Printf("ws: client disconnected (%s), total=%d", projectionName(h.Projection), h.Counter.Total())

	stop := make(chan struct{})
	go h.readPump(conn, stop)

	h.writePump(conn, sub, stop)
}

// readPump drains incoming control frames (pings, pongs, close) so gorilla's
// connection stays healthy; it never expects application data from clients.
func (h *Handler) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the single writer goroutine for this connection: it forwards
// published envelopes, sends periodic heartbeats, and exits once the read
// side detects the connection is gone.
func (h *Handler) writePump(conn *websocket.Conn, sub *bus.Subscription, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if lagged := sub.Lagged(); lagged > 0 {
				log.Printf("ws: client lagged, dropped %d messages", lagged)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, env.Bytes(h.Projection)); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(certrecord.HeartbeatJSON)); err != nil {
				return
			}

		case <-stop:
			return
		}
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
