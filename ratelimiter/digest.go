package ratelimiter

import (
	"encoding/binary"
	"sync"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
)

// DecisionDigest accumulates a running hash over a sequence of admit
// decisions, so a bundle can carry a compact commitment to what the
// limiter decided during an incident window. The digest is a hash
// chain: each recorded decision folds into the previous digest state,
// so it is a deterministic function of the decision sequence alone
// (the same property Admit itself has) and any re-run of the recorded
// workload reproduces it exactly.
type DecisionDigest struct {
	mu    sync.Mutex
	state [crypto.Size]byte
	count uint64
}

// NewDecisionDigest returns an empty digest.
func NewDecisionDigest() *DecisionDigest { return &DecisionDigest{} }

// Record folds one admit decision into the digest.
func (d *DecisionDigest) Record(key string, now uint64, cost int64, allowed bool) {
	var fixed [17]byte
	binary.BigEndian.PutUint64(fixed[0:8], now)
	binary.BigEndian.PutUint64(fixed[8:16], uint64(cost))
	if allowed {
		fixed[16] = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = crypto.Hash(d.state[:], []byte(key), fixed[:])
	d.count++
}

// Sum returns the current digest value and the number of decisions
// folded into it.
func (d *DecisionDigest) Sum() ([crypto.Size]byte, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.count
}
