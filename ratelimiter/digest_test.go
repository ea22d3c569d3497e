package ratelimiter

import (
	"testing"
	"time"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
)

func TestDecisionDigestDeterministic(t *testing.T) {
	run := func() ([32]byte, uint64) {
		clk := clock.NewManual(0)
		dd := NewDecisionDigest()
		l := NewLimiter(Config{Capacity: 3, Duration: 10 * time.Second, Digest: dd}, clk)
		for i := 0; i < 20; i++ {
			l.Admit("tenant-a", 1)
			clk.Advance(time.Second)
		}
		return dd.Sum()
	}

	d1, n1 := run()
	d2, n2 := run()
	if n1 != 20 || n2 != 20 {
		t.Fatalf("counts = %d, %d, want 20", n1, n2)
	}
	if d1 != d2 {
		t.Fatalf("identical workloads produced different digests")
	}
}

func TestDecisionDigestSensitiveToDecisions(t *testing.T) {
	dd1 := NewDecisionDigest()
	dd1.Record("k", 100, 1, true)
	dd2 := NewDecisionDigest()
	dd2.Record("k", 100, 1, false)

	s1, _ := dd1.Sum()
	s2, _ := dd2.Sum()
	if s1 == s2 {
		t.Fatalf("Allow and Deny folded to the same digest")
	}
}

func TestDecisionDigestEmpty(t *testing.T) {
	dd := NewDecisionDigest()
	sum, n := dd.Sum()
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
	var zero [32]byte
	if sum != zero {
		t.Fatalf("empty digest must be the zero value")
	}
}
