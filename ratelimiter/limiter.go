package ratelimiter

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
)

// DefaultShardCount is the default number of lock shards.
const DefaultShardCount = 64

// Config controls Limiter behavior. Capacity and Duration together
// define the sliding window: at most Capacity cost units are admitted
// in any (now-Duration, now] interval, per key.
type Config struct {
	Capacity   int64
	Duration   time.Duration
	ShardCount int
	// Digest, if non-nil, receives every admit decision so incident
	// bundles can carry a commitment to what the limiter decided.
	Digest *DecisionDigest
}

func (c Config) shardCount() int {
	if c.ShardCount <= 0 {
		return DefaultShardCount
	}
	return c.ShardCount
}

type shard struct {
	mu     sync.Mutex
	states map[string]*windowState
}

// Limiter admits or denies requests under a sliding-window policy,
// per key, with sharded locking to bound contention across keys.
type Limiter struct {
	cfg    Config
	clock  clock.Source
	shards []*shard

	sweepOnce sync.Once
	stop      chan struct{}
}

// NewLimiter constructs a Limiter. clk.NowMono is used for all window
// arithmetic; wall-clock readings never enter admission decisions.
func NewLimiter(cfg Config, clk clock.Source) *Limiter {
	n := cfg.shardCount()
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{states: make(map[string]*windowState)}
	}
	return &Limiter{cfg: cfg, clock: clk, shards: shards, stop: make(chan struct{})}
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Admit attempts to reserve cost units for key at the current time.
// A key's shard lock is held only across the lookup-evict-admit
// sequence; no I/O happens under the lock, and the decision digest (if
// configured) is updated after the lock is released.
func (l *Limiter) Admit(key string, cost int64) bool {
	now := l.clock.NowMono()
	s := l.shardFor(key)

	s.mu.Lock()
	ws, ok := s.states[key]
	if !ok {
		ws = &windowState{}
		s.states[key] = ws
	}
	allowed := ws.admit(now, uint64(l.cfg.Duration), l.cfg.Capacity, cost)
	s.mu.Unlock()

	if l.cfg.Digest != nil {
		l.cfg.Digest.Record(key, now, cost, allowed)
	}
	return allowed
}

// StartSweep launches a background goroutine that periodically removes
// idle per-key state, bounding memory under churning key sets. It is
// safe to call at most once; subsequent calls are no-ops. Callers that
// never need bounded memory growth (e.g. short-lived tests) may skip
// calling it, since Admit also evicts lazily on lookup.
func (l *Limiter) StartSweep(interval time.Duration) {
	l.sweepOnce.Do(func() {
		go l.sweepLoop(interval)
	})
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep takes each shard's lock in turn and removes keys idle for at
// least Duration, so removal can never cause a transient allow-burst:
// an idle key's WindowState is empty by definition, so deleting it and
// re-creating it on the next Admit is observably identical.
func (l *Limiter) sweep() {
	now := l.clock.NowMono()
	duration := uint64(l.cfg.Duration)
	for _, s := range l.shards {
		s.mu.Lock()
		for key, ws := range s.states {
			if ws.idleSince(now, duration) {
				delete(s.states, key)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the background sweep goroutine, if running.
func (l *Limiter) Close() {
	close(l.stop)
}
