package health

import "testing"

func TestStartsHealthy(t *testing.T) {
	tr := NewTracker(3, 5)
	if tr.Status() != Healthy {
		t.Fatalf("status = %v, want Healthy", tr.Status())
	}
	if !tr.IsHealthy() {
		t.Fatalf("IsHealthy() = false, want true")
	}
}

func TestDegradesAtHalfUnhealthyThreshold(t *testing.T) {
	tr := NewTracker(3, 10)
	for i := 0; i < 5; i++ {
		tr.RecordFailure()
	}
	if tr.Status() != Degraded {
		t.Fatalf("status = %v, want Degraded", tr.Status())
	}
	if !tr.IsHealthy() {
		t.Fatalf("Degraded should still count as healthy enough to keep polling")
	}
}

func TestBecomesUnhealthyAtThreshold(t *testing.T) {
	tr := NewTracker(3, 10)
	for i := 0; i < 10; i++ {
		tr.RecordFailure()
	}
	if tr.Status() != Unhealthy {
		t.Fatalf("status = %v, want Unhealthy", tr.Status())
	}
	if tr.IsHealthy() {
		t.Fatalf("IsHealthy() = true, want false once Unhealthy")
	}
	if tr.TotalErrors() != 10 {
		t.Fatalf("TotalErrors() = %d, want 10", tr.TotalErrors())
	}
}

func TestRecoversToHealthyAfterEnoughSuccesses(t *testing.T) {
	tr := NewTracker(3, 10)
	for i := 0; i < 10; i++ {
		tr.RecordFailure()
	}
	for i := 0; i < 3; i++ {
		tr.RecordSuccess()
	}
	if tr.Status() != Healthy {
		t.Fatalf("status = %v, want Healthy after recovery streak", tr.Status())
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	tr := NewTracker(3, 10)
	for i := 0; i < 9; i++ {
		tr.RecordFailure()
	}
	tr.RecordSuccess()
	tr.RecordFailure()
	if tr.Status() == Unhealthy {
		t.Fatalf("a single interleaved success should have reset the failure streak")
	}
}
