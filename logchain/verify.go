package logchain

import (
	"fmt"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
)

// FailureKind identifies why verification stopped.
type FailureKind int

const (
	// BadMAC means entry Index's MAC did not verify against key and
	// the running prev_mac.
	BadMAC FailureKind = iota
	// CounterGap means entry Index's counter did not equal the
	// previous entry's counter plus one.
	CounterGap
	// TimestampRegression means entry Index's timestamp was strictly
	// less than the previous entry's.
	TimestampRegression
)

func (k FailureKind) String() string {
	switch k {
	case BadMAC:
		return "BadMAC"
	case CounterGap:
		return "CounterGap"
	case TimestampRegression:
		return "TimestampRegression"
	default:
		return "Unknown"
	}
}

// Failure is a structured verification failure carrying the index (0
// based position within the verified slice, not the entry's Counter)
// and reason.
type Failure struct {
	Index uint64
	Kind  FailureKind
}

func (f *Failure) Error() string {
	return fmt.Sprintf("logchain: verification failed at index %d: %s", f.Index, f.Kind)
}

// Result is the outcome of VerifyChain/VerifyPrefix: either Valid (Err
// is nil) or a *Failure.
type Result struct {
	Err         *Failure
	LastCounter uint64
	LastMAC     [crypto.Size]byte
}

// Valid reports whether the result represents a fully-verified chain.
func (r Result) Valid() bool { return r.Err == nil }

// VerifyChain verifies entries as a complete chain starting from the
// sentinel state (counter 0, all-zero prev_mac). It is pure and
// restartable, holding only the running prev_mac and counter:
// constant memory regardless of chain length.
func VerifyChain(entries []Entry, key []byte) Result {
	return VerifyPrefix(entries, key, 0, [crypto.Size]byte{})
}

// VerifyPrefix verifies entries as a continuation of a chain whose
// state just before entries[0] was (startCounter, startMAC). Passing
// startCounter=0 and an all-zero startMAC verifies from the beginning.
// This bounded form lets the bundle assembler and CLI resume streaming
// verification from a Checkpoint instead of replaying the whole chain.
func VerifyPrefix(entries []Entry, key []byte, startCounter uint64, startMAC [crypto.Size]byte) Result {
	prevCounter := startCounter
	prevTimestamp := uint64(0)
	prevMAC := startMAC
	haveTimestamp := false

	for i, e := range entries {
		if e.Counter != prevCounter+1 {
			return Result{Err: &Failure{Index: uint64(i), Kind: CounterGap}}
		}
		if haveTimestamp && e.Timestamp < prevTimestamp {
			return Result{Err: &Failure{Index: uint64(i), Kind: TimestampRegression}}
		}
		if e.PrevMAC != prevMAC {
			return Result{Err: &Failure{Index: uint64(i), Kind: BadMAC}}
		}
		want := computeMAC(key, e.Timestamp, e.Level, e.Message, e.Counter, prevMAC)
		if !crypto.ConstantTimeEqual(want, e.MAC) {
			return Result{Err: &Failure{Index: uint64(i), Kind: BadMAC}}
		}

		prevCounter = e.Counter
		prevTimestamp = e.Timestamp
		haveTimestamp = true
		prevMAC = e.MAC
	}

	return Result{LastCounter: prevCounter, LastMAC: prevMAC}
}

// VerifySlice verifies entries extracted from a valid chain without
// requiring them to form a contiguous prefix: the bundle assembler
// slices a chain to a time window (so the first entry's counter is
// rarely 1), and size-budget trimming may remove DEBUG/TRACE entries
// from the middle of a slice. Counters must still strictly increase and
// timestamps must be non-decreasing; each entry's MAC must verify under
// key against the prev_mac the entry itself carries (the MAC commits to
// that binding, so it cannot be forged without the key); and wherever
// two retained entries are adjacent in the original chain (counters
// differ by exactly one), the later entry's prev_mac must equal the
// earlier entry's MAC.
func VerifySlice(entries []Entry, key []byte) Result {
	var prev Entry
	havePrev := false

	for i, e := range entries {
		if havePrev {
			if e.Counter <= prev.Counter {
				return Result{Err: &Failure{Index: uint64(i), Kind: CounterGap}}
			}
			if e.Timestamp < prev.Timestamp {
				return Result{Err: &Failure{Index: uint64(i), Kind: TimestampRegression}}
			}
			if e.Counter == prev.Counter+1 && e.PrevMAC != prev.MAC {
				return Result{Err: &Failure{Index: uint64(i), Kind: BadMAC}}
			}
		}
		want := computeMAC(key, e.Timestamp, e.Level, e.Message, e.Counter, e.PrevMAC)
		if !crypto.ConstantTimeEqual(want, e.MAC) {
			return Result{Err: &Failure{Index: uint64(i), Kind: BadMAC}}
		}

		prev = e
		havePrev = true
	}

	if !havePrev {
		return Result{}
	}
	return Result{LastCounter: prev.Counter, LastMAC: prev.MAC}
}
