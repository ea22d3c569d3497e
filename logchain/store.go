package logchain

import "github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"

// Tail is the published (counter, mac) pair for the chain's current
// last entry, plus whether the chain has been sealed.
type Tail struct {
	Counter uint64
	MAC     [crypto.Size]byte
	Sealed  bool
}

// Checkpoint is a periodic anchor recording the counter and MAC at a
// point in the chain, so VerifyPrefix can resume from the nearest
// checkpoint at or before a window's start instead of replaying from
// entry 1. A Checkpoint carries no key material; the chain uses one
// static key throughout.
type Checkpoint struct {
	Counter uint64
	MAC     [crypto.Size]byte
}

// Store abstracts persistence for a Chain. Implementations must make
// Append durable before returning success: the writer relies on this to
// guarantee in-memory state never advances past a failed durable write.
type Store interface {
	// Append durably writes entry, updates the published tail, and
	// optionally records a checkpoint, as a single unit.
	Append(entry Entry, tail Tail, checkpoint *Checkpoint) error
	// MarkSealed durably records that the chain has been sealed.
	MarkSealed() error
	// Tail returns the most recently published tail, or ok=false if
	// the chain is empty.
	Tail() (Tail, bool, error)
	// Iter streams entries with counter >= fromCounter in counter
	// order. The returned channel is closed when iteration completes
	// or the returned cancel function is called; callers must call
	// cancel to release resources even after fully draining the
	// channel.
	Iter(fromCounter uint64) (entries <-chan Entry, cancel func(), err error)
	// CheckpointBefore returns the checkpoint with the greatest
	// Counter <= counter, or ok=false if none exists (the caller
	// should then verify from entry 1).
	CheckpointBefore(counter uint64) (Checkpoint, bool, error)
	// Close releases any resources held by the store.
	Close() error
}
