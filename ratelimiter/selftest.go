package ratelimiter

import (
	"fmt"
	"time"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
)

// SelfTest runs a property-based check of the limiter's admission
// guarantees (zero false-negatives, determinism) against a synthetic
// workload, for use by the rate_verifier CLI. It returns nil if every
// property held.
func SelfTest() error {
	const capacity = 20
	const duration = 10 * time.Second

	type call struct {
		advance time.Duration
		cost    int64
	}
	workload := make([]call, 0, 400)
	for i := 0; i < 400; i++ {
		advance := time.Duration(i%7) * 50 * time.Millisecond
		cost := int64(1 + i%3)
		workload = append(workload, call{advance: advance, cost: cost})
	}

	run := func() []bool {
		clk2 := clock.NewManual(0)
		l := NewLimiter(Config{Capacity: capacity, Duration: duration}, clk2)
		results := make([]bool, len(workload))
		for i, c := range workload {
			clk2.Advance(c.advance)
			results[i] = l.Admit("self-test-key", c.cost)
		}
		return results
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			return fmt.Errorf("ratelimiter: determinism property violated at call %d", i)
		}
	}

	clk3 := clock.NewManual(0)
	verifier := NewLimiter(Config{Capacity: capacity, Duration: duration}, clk3)
	admittedInWindow := int64(0)
	windowStart := uint64(0)
	for _, c := range workload {
		clk3.Advance(c.advance)
		now := clk3.NowMono()
		for now-windowStart > uint64(duration) {
			windowStart += uint64(duration)
			admittedInWindow = 0
		}
		if verifier.Admit("self-test-key", c.cost) {
			admittedInWindow += c.cost
			if admittedInWindow > capacity {
				return fmt.Errorf("ratelimiter: zero-false-negative property violated: %d admitted in one window, capacity %d", admittedInWindow, capacity)
			}
		}
	}

	return nil
}
