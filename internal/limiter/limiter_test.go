package limiter

import (
	"testing"

	"github.com/ctfanout/ctstream/internal/config"
)

func TestDisabledLimiterAlwaysAcquires(t *testing.T) {
	l := New(config.ConnectionLimit{Enabled: false, MaxConnections: 0})
	if !l.TryAcquire("1.2.3.4") {
		t.Fatalf("disabled limiter should always acquire")
	}
}

func TestTotalLimitRejectsBeyondCap(t *testing.T) {
	l := New(config.ConnectionLimit{Enabled: true, MaxConnections: 2})

	if !l.TryAcquire("1.1.1.1") || !l.TryAcquire("2.2.2.2") {
		t.Fatalf("first two acquisitions should succeed")
	}
	if l.TryAcquire("3.3.3.3") {
		t.Fatalf("third acquisition should be rejected at the total cap")
	}

	l.Release("1.1.1.1")
	if !l.TryAcquire("3.3.3.3") {
		t.Fatalf("acquisition should succeed again after a release")
	}
}

func TestPerIPLimitRejectsSameIPBeyondCap(t *testing.T) {
	l := New(config.ConnectionLimit{Enabled: true, MaxConnections: 100, PerIPLimit: 1})

	if !l.TryAcquire("1.1.1.1") {
		t.Fatalf("first connection from an IP should succeed")
	}
	if l.TryAcquire("1.1.1.1") {
		t.Fatalf("second connection from the same IP should be rejected")
	}
	if !l.TryAcquire("2.2.2.2") {
		t.Fatalf("a different IP should still be able to connect")
	}
}

func TestPerIPRejectionReleasesTheTotalSlot(t *testing.T) {
	l := New(config.ConnectionLimit{Enabled: true, MaxConnections: 2, PerIPLimit: 1})

	l.TryAcquire("1.1.1.1")
	l.TryAcquire("1.1.1.1") // rejected by per-IP, must give back the total slot

	if !l.TryAcquire("2.2.2.2") {
		t.Fatalf("total slot should have been released after the per-IP rejection")
	}
}

func TestDoubleReleaseSaturatesInsteadOfWrapping(t *testing.T) {
	l := New(config.ConnectionLimit{Enabled: true, MaxConnections: 1})

	l.TryAcquire("1.1.1.1")
	l.Release("1.1.1.1")
	l.Release("1.1.1.1") // double release must not wrap total back to max-uint32

	if !l.TryAcquire("2.2.2.2") {
		t.Fatalf("acquisition should succeed: total should be saturated at 0, not wrapped")
	}
	if l.TryAcquire("3.3.3.3") {
		t.Fatalf("a second concurrent acquisition should still be rejected at the cap of 1")
	}
}
