package logchain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
)

// state is the writer-side state machine:
// Empty -> Active(last_counter, last_mac) -> Sealed.
type state int

const (
	stateEmpty state = iota
	stateActive
	stateSealed
)

// sealMessage is the distinguished message of the end-marker entry
// written by Seal.
const sealMessage = "CHAIN_SEALED"

// ErrChainSealed is returned by Append once the chain has been sealed.
var ErrChainSealed = errors.New("logchain: chain is sealed")

// StorageError wraps a failure from the backing Store. The in-memory
// writer state is guaranteed not to have advanced past a failed
// durable write.
type StorageError struct {
	Stage string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("logchain: storage error at %s: %v", e.Stage, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// Config controls chain-writer behavior.
type Config struct {
	// MaxMessageBytes bounds Entry.Message length. Zero means
	// DefaultMaxMessageBytes.
	MaxMessageBytes uint32
	// CheckpointEvery, if non-zero, records a Checkpoint every N
	// entries so VerifyPrefix can resume from the nearest checkpoint
	// at or before a window's start instead of replaying from entry 1.
	CheckpointEvery uint64
}

func (c Config) maxMessageBytes() uint32 {
	if c.MaxMessageBytes == 0 {
		return DefaultMaxMessageBytes
	}
	return c.MaxMessageBytes
}

// Chain is the single-writer, append-only log chain. A chain has
// exactly one writer; readers (Verifier, bundle assembler) obtain
// immutable snapshots via Store.Iter, never through Chain itself.
type Chain struct {
	mu    sync.Mutex
	cfg   Config
	key   []byte
	clock clock.Source
	store Store

	st      state
	counter uint64
	prevMAC [crypto.Size]byte
}

// Open constructs a Chain bound to store, authenticated under key. The
// key is copied and read-only thereafter. Open replays the store's
// current tail to resume a previously-written chain.
func Open(cfg Config, key []byte, clk clock.Source, store Store) (*Chain, error) {
	tail, ok, err := store.Tail()
	if err != nil {
		return nil, fmt.Errorf("logchain: read tail: %w", err)
	}
	c := &Chain{cfg: cfg, key: append([]byte(nil), key...), clock: clk, store: store}
	if !ok {
		c.st = stateEmpty
		return c, nil
	}
	c.counter = tail.Counter
	c.prevMAC = tail.MAC
	if tail.Sealed {
		c.st = stateSealed
	} else {
		c.st = stateActive
	}
	return c, nil
}

// Append computes the MAC for a new entry under the writer lock and
// persists it durably before publishing the new tail state. Fails with
// a *StorageError if the backing store rejects the write; the
// in-memory counter/prevMAC are not advanced in that case.
func (c *Chain) Append(level Level, message []byte) (Entry, error) {
	if !ValidLevel(level) {
		return Entry{}, fmt.Errorf("logchain: invalid level %d", level)
	}
	if uint32(len(message)) > c.cfg.maxMessageBytes() {
		return Entry{}, fmt.Errorf("logchain: message length %d exceeds max %d", len(message), c.cfg.maxMessageBytes())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st == stateSealed {
		return Entry{}, ErrChainSealed
	}

	nextCounter := c.counter + 1
	ts := c.clock.NowWall()
	mac := computeMAC(c.key, ts, level, message, nextCounter, c.prevMAC)

	entry := Entry{
		Timestamp: ts,
		Level:     level,
		Message:   append([]byte(nil), message...),
		Counter:   nextCounter,
		PrevMAC:   c.prevMAC,
		MAC:       mac,
	}

	var checkpoint *Checkpoint
	if c.cfg.CheckpointEvery != 0 && nextCounter%c.cfg.CheckpointEvery == 0 {
		checkpoint = &Checkpoint{Counter: nextCounter, MAC: mac}
	}

	tail := Tail{Counter: nextCounter, MAC: mac}
	if err := c.store.Append(entry, tail, checkpoint); err != nil {
		return Entry{}, &StorageError{Stage: "append", Cause: err}
	}

	c.st = stateActive
	c.counter = nextCounter
	c.prevMAC = mac
	return entry, nil
}

// Seal writes the distinguished end-marker entry and transitions the
// chain to the Sealed terminal state. Further Append calls fail with
// ErrChainSealed. Sealing is the only recorded transition closing a
// chain; when to trigger it is retention policy and left to callers.
func (c *Chain) Seal() (Entry, error) {
	c.mu.Lock()
	if c.st == stateSealed {
		c.mu.Unlock()
		return Entry{}, ErrChainSealed
	}
	c.mu.Unlock()

	entry, err := c.Append(LevelInfo, []byte(sealMessage))
	if err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.MarkSealed(); err != nil {
		return Entry{}, &StorageError{Stage: "seal", Cause: err}
	}
	c.st = stateSealed
	return entry, nil
}

// Tail returns the chain's current counter and MAC, and whether it has
// been sealed.
func (c *Chain) Tail() (counter uint64, mac [crypto.Size]byte, sealed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter, c.prevMAC, c.st == stateSealed
}
