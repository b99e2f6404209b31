package bus

import (
	"testing"

	"github.com/ctfanout/ctstream/internal/certrecord"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe()
	b := hub.Subscribe()

	env := &certrecord.Envelope{Full: []byte(`{"x":1}`)}
	hub.Publish(env)

	select {
	case got := <-a.C:
		if got != env {
			t.Fatalf("subscriber a got a different envelope")
		}
	default:
		t.Fatalf("subscriber a received nothing")
	}

	select {
	case got := <-b.C:
		if got != env {
			t.Fatalf("subscriber b got a different envelope")
		}
	default:
		t.Fatalf("subscriber b received nothing")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()

	env := &certrecord.Envelope{Full: []byte(`{}`)}
	hub.Publish(env) // fills the buffer of 1
	hub.Publish(env) // should drop, not block

	if got := sub.Lagged(); got != 1 {
		t.Fatalf("Lagged() = %d, want 1", got)
	}
	if got := sub.Lagged(); got != 0 {
		t.Fatalf("Lagged() should reset to 0 after reading, got %d", got)
	}
}

func TestSlowSubscriberKeepsMostRecentEnvelopes(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe()

	envs := make([]*certrecord.Envelope, 10)
	for i := range envs {
		envs[i] = &certrecord.Envelope{Full: []byte{byte(i + 1)}}
		hub.Publish(envs[i])
	}

	if got := sub.Lagged(); got != 6 {
		t.Fatalf("Lagged() = %d, want 6 (10 published, 4 retained)", got)
	}

	for i := 6; i < 10; i++ {
		select {
		case got := <-sub.C:
			if got != envs[i] {
				t.Fatalf("buffer slot for envelope %d held a different envelope, want the %d-th published", i+1, i+1)
			}
		default:
			t.Fatalf("expected envelope %d still queued", i+1)
		}
	}

	select {
	case <-sub.C:
		t.Fatalf("expected no more than 4 envelopes queued")
	default:
	}
}

func TestUnsubscribeClosesChannelAndRemoves(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}

	sub.Unsubscribe()

	if hub.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 after unsubscribe", hub.SubscriberCount())
	}

	if _, open := <-sub.C; open {
		t.Fatalf("expected subscriber channel to be closed after Unsubscribe")
	}
}

func TestUnsubscribedSubscriberIsNotPublishedTo(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe()
	sub.Unsubscribe()

	hub.Publish(&certrecord.Envelope{Full: []byte(`{}`)}) // must not panic on a closed channel
}
