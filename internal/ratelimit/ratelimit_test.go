package ratelimit

import (
	"testing"

	"github.com/ctfanout/ctstream/internal/config"
)

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := New(config.RateLimit{Enabled: false, PerSecond: 0, BurstSize: 0})
	for i := 0; i < 100; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("disabled limiter rejected an event")
		}
	}
}

func TestBurstAllowsUpToCapacityThenRejects(t *testing.T) {
	l := New(config.RateLimit{Enabled: true, PerSecond: 1, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if !l.Allow("1.1.1.1") {
			t.Fatalf("event %d within burst should be allowed", i)
		}
	}
	if l.Allow("1.1.1.1") {
		t.Fatalf("event beyond burst capacity should be rejected")
	}
}

func TestBucketsAreIndependentPerIP(t *testing.T) {
	l := New(config.RateLimit{Enabled: true, PerSecond: 1, BurstSize: 1})

	if !l.Allow("1.1.1.1") {
		t.Fatalf("first event for 1.1.1.1 should be allowed")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatalf("first event for 2.2.2.2 should be allowed independently")
	}
	if l.Allow("1.1.1.1") {
		t.Fatalf("second immediate event for 1.1.1.1 should be rejected")
	}
}
