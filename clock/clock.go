// Package clock supplies the wall-clock and monotonic time readings the
// rest of the module needs, as a constructor-injected dependency rather
// than a package-level singleton, so tests can substitute a fixed or
// manually-advanced source freely.
package clock

import (
	"sync"
	"time"
)

// Source exposes wall-clock and monotonic readings plus window
// arithmetic over them. now_wall is used for log timestamps and bundle
// windows; now_mono is used for rate-limit windows, where only
// differences between readings are meaningful.
type Source interface {
	// NowWall returns nanoseconds since the Unix epoch.
	NowWall() uint64
	// NowMono returns a monotonically non-decreasing nanosecond counter.
	// Only valid for computing differences within one process lifetime.
	NowMono() uint64
}

// System returns a Source backed by time.Now(). Its monotonic reading is
// derived from time.Time's own monotonic clock reading (every time.Now()
// carries one on platforms Go supports), so NowMono is guaranteed
// non-decreasing within the process without needing a separate
// mechanism.
func System() Source { return systemSource{start: time.Now()} }

type systemSource struct{ start time.Time }

func (s systemSource) NowWall() uint64 {
	return uint64(time.Now().UnixNano())
}

func (s systemSource) NowMono() uint64 {
	// time.Since subtracts the monotonic components of the two
	// time.Time values when both carry one, which is true for any
	// time.Time produced by time.Now(). A regression here is only
	// possible if the runtime itself regresses, a programming fault
	// rather than a runtime condition.
	return uint64(time.Since(s.start).Nanoseconds())
}

// Manual is a test double whose readings only change when advanced
// explicitly. Safe for concurrent use.
type Manual struct {
	mu   sync.Mutex
	wall uint64
	mono uint64
}

// NewManual returns a Manual source starting at the given wall-clock
// reading (nanoseconds since epoch); its monotonic reading starts at 0.
func NewManual(startWall uint64) *Manual {
	return &Manual{wall: startWall}
}

func (m *Manual) NowWall() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wall
}

func (m *Manual) NowMono() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mono
}

// Advance moves both readings forward by d. Panics if d is negative —
// the monotonic reading must never regress.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: Manual.Advance called with negative duration")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wall += uint64(d.Nanoseconds())
	m.mono += uint64(d.Nanoseconds())
}

// Set pins the wall-clock reading to an exact value without moving the
// monotonic reading, for tests that need to construct entries at
// specific timestamps out of sequence (e.g. timestamp-regression
// fixtures).
func (m *Manual) Set(wall uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wall = wall
}

// Window is a half-open interval (start, end] used by the rate limiter:
// an event at timestamp t is "in window ending at now" iff
// start < t <= now, where start = now - duration.
type Window struct {
	Start uint64 // exclusive
	End   uint64 // inclusive
}

// SlidingWindow returns the half-open window (now-duration, now] ending
// at now. If duration exceeds now, Start saturates at 0 rather than
// underflowing.
func SlidingWindow(now uint64, duration time.Duration) Window {
	d := uint64(duration.Nanoseconds())
	var start uint64
	if d < now {
		start = now - d
	}
	return Window{Start: start, End: now}
}

// Contains reports whether ts falls within the half-open window.
func (w Window) Contains(ts uint64) bool {
	return ts > w.Start && ts <= w.End
}

// ClosedWindow is the closed [start, end] interval bundles use.
type ClosedWindow struct {
	Start uint64
	End   uint64
}

// Contains reports whether ts falls within the closed interval.
func (w ClosedWindow) Contains(ts uint64) bool {
	return ts >= w.Start && ts <= w.End
}
