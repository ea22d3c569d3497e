// Package crypto is the narrow primitives interface the rest of the
// module consumes: keyed MACs and content hashes over byte strings, plus
// constant-time comparison of MAC/hash output. It binds those operations
// to crypto/hmac and crypto/sha256 and never inspects the bytes it
// returns beyond equality.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
)

// Size is the output size, in bytes, of both MAC and Hash.
const Size = sha256.Size

// MAC computes HMAC-SHA256, keyed by key, over chunks, each preceded by
// its length as an 8-byte big-endian integer. Passing the pieces of a
// record separately (rather than concatenating them first) avoids an
// extra allocation and, more importantly, avoids ambiguity between e.g.
// ("ab","c") and ("a","bc") that a naive join could introduce — the
// length prefix makes each chunk a distinct field in the MAC'd
// structure.
func MAC(key []byte, chunks ...[]byte) [Size]byte {
	h := hmac.New(sha256.New, key)
	var lenBuf [8]byte
	for _, c := range chunks {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(c)))
		h.Write(lenBuf[:])
		h.Write(c)
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hash computes SHA-256 over the concatenation of chunks.
func Hash(chunks ...[]byte) [Size]byte {
	h := sha256.New()
	for _, c := range chunks {
		h.Write(c)
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ConstantTimeEqual reports whether a and b are equal, in time
// independent of where they first differ. Required for all MAC/hash
// comparisons so that verification never leaks timing information
// about the expected value.
func ConstantTimeEqual(a, b [Size]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// IsZero reports whether v is the all-zero value, used to recognize the
// sentinel prev_mac of a chain's first entry.
func IsZero(v [Size]byte) bool {
	var acc byte
	for _, b := range v {
		acc |= b
	}
	return acc == 0
}
