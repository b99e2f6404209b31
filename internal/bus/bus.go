// Package bus fans a single stream of published envelopes out to many
// independent subscribers, each reading at its own pace. A subscriber that
// falls behind drops messages rather than blocking the publisher.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/ctfanout/ctstream/internal/certrecord"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// callers don't specify one.
const DefaultSubscriberBuffer = 256

// Subscription is a single subscriber's read handle. Receive from C directly;
// call Lagged to find out how many messages were dropped since the last
// check, and Unsubscribe when done.
type Subscription struct {
	C <-chan *certrecord.Envelope

	hub     *Hub
	id      uint64
	dropped atomic.Uint64
}

// Lagged returns and resets the number of messages dropped for this
// subscriber because its buffer was full when the publisher tried to send.
func (s *Subscription) Lagged() uint64 {
	return s.dropped.Swap(0)
}

// Unsubscribe removes this subscriber from the hub and closes its channel.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s.id)
}

// Hub is a multi-publisher, multi-subscriber fan-out point; Publish may be
// called from several goroutines at once. The zero value is not usable;
// construct with NewHub.
type Hub struct {
	mu        sync.RWMutex
	nextID    uint64
	subs      map[uint64]*subscriber
	bufferLen int
}

type subscriber struct {
	ch   chan *certrecord.Envelope
	sub  *Subscription
}

// NewHub builds a Hub whose subscriber channels are each buffered to
// bufferLen entries. bufferLen <= 0 falls back to DefaultSubscriberBuffer.
func NewHub(bufferLen int) *Hub {
	if bufferLen <= 0 {
		bufferLen = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:      make(map[uint64]*subscriber),
		bufferLen: bufferLen,
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	ch := make(chan *certrecord.Envelope, h.bufferLen)
	sub := &Subscription{C: ch, hub: h, id: id}

	h.subs[id] = &subscriber{ch: ch, sub: sub}

	return sub
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Publish hands env to every current subscriber. A subscriber whose buffer
// is full does not block the others: the oldest envelope still queued for
// it is dropped to make room, so a lagging subscriber's buffer always holds
// the most recent bufferLen envelopes rather than getting stuck on the
// oldest ones it never read.
func (h *Hub) Publish(env *certrecord.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		select {
		case s.ch <- env:
			continue
		default:
		}

		select {
		case <-s.ch:
			s.sub.dropped.Add(1)
		default:
		}

		select {
		case s.ch <- env:
		default:
			// A concurrent receive drained the slot we just freed before we
			// could use it; count this envelope as dropped too rather than
			// spin-retrying.
			s.sub.dropped.Add(1)
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
