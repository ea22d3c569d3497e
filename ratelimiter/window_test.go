package ratelimiter

import "testing"

func TestWindowStateAdmitWithinCapacity(t *testing.T) {
	w := &windowState{}
	for i := uint64(0); i < 10; i++ {
		if !w.admit(i, 60, 10, 1) {
			t.Fatalf("admit %d: expected Allow", i)
		}
	}
	if w.currentSum != 10 {
		t.Fatalf("currentSum = %d, want 10", w.currentSum)
	}
}

func TestWindowStateDeniesOverCapacity(t *testing.T) {
	w := &windowState{}
	for i := uint64(0); i < 10; i++ {
		w.admit(i, 60, 10, 1)
	}
	if w.admit(10, 60, 10, 1) {
		t.Fatalf("expected Deny at capacity")
	}
	if w.currentSum != 10 {
		t.Fatalf("currentSum changed on denied admit: %d", w.currentSum)
	}
}

func TestWindowStateEvictsStaleEvents(t *testing.T) {
	w := &windowState{}
	for i := uint64(0); i < 10; i++ {
		w.admit(i, 60, 10, 1)
	}
	// window is now (1, 61]: events at t=0 and t=1 fall on or before the
	// threshold and are evicted, leaving 8 survivors (t=2..9) plus this one.
	if !w.admit(61, 60, 10, 1) {
		t.Fatalf("expected Allow after oldest events expire")
	}
	if w.currentSum != 9 {
		t.Fatalf("currentSum = %d, want 9", w.currentSum)
	}
	if len(w.events) != 9 {
		t.Fatalf("len(events) = %d, want 9", len(w.events))
	}
}

func TestWindowStateEvictAtZero(t *testing.T) {
	w := &windowState{}
	w.admit(0, 60, 10, 5)
	w.evict(0, 60)
	if w.currentSum != 5 {
		t.Fatalf("event at t=0 should survive window ending at t=0 (half-open interval boundary)")
	}
}

func TestWindowStateIdleSince(t *testing.T) {
	w := &windowState{}
	w.admit(0, 60, 10, 1)
	if w.idleSince(30, 60) {
		t.Fatalf("should not be idle within duration")
	}
	if !w.idleSince(61, 60) {
		t.Fatalf("should be idle once lastSeen <= now-duration")
	}
}

// TestWindowStateCostExceedingCapacityNeverAdmitted covers a
// single large request that can never be admitted: capacity is fixed,
// so a cost greater than capacity must always be denied regardless of
// window occupancy.
func TestWindowStateCostExceedingCapacityNeverAdmitted(t *testing.T) {
	w := &windowState{}
	if w.admit(0, 60, 10, 11) {
		t.Fatalf("expected Deny: cost exceeds capacity")
	}
	if w.currentSum != 0 {
		t.Fatalf("currentSum changed on denied admit: %d", w.currentSum)
	}
}
