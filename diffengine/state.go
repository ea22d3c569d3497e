// Package diffengine implements versioned state transitions where
// applying a Diff and then reverting it is the identity.
package diffengine

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
)

// State is a keyed collection of byte blobs plus per-id metadata.
type State struct {
	blobs map[string][]byte
	meta  map[string]map[string]string
}

// NewState returns an empty State.
func NewState() *State {
	return &State{blobs: map[string][]byte{}, meta: map[string]map[string]string{}}
}

// Clone returns a deep copy of s, so mutating the clone never affects s.
// Apply/Revert build their result on a clone and only return it once
// the whole diff has been checked and applied, which is what makes a
// failed apply leave the original State untouched.
func (s *State) Clone() *State {
	out := NewState()
	for id, v := range s.blobs {
		out.blobs[id] = append([]byte(nil), v...)
	}
	for id, kv := range s.meta {
		m := make(map[string]string, len(kv))
		for k, v := range kv {
			m[k] = v
		}
		out.meta[id] = m
	}
	return out
}

// Get returns the byte blob for id, if present.
func (s *State) Get(id string) ([]byte, bool) {
	v, ok := s.blobs[id]
	return v, ok
}

// IDs returns the set of ids present in s, sorted for determinism.
func (s *State) IDs() []string {
	out := make([]string, 0, len(s.blobs))
	for id := range s.blobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Meta returns the value of key k for id, if present.
func (s *State) Meta(id, k string) (string, bool) {
	kv, ok := s.meta[id]
	if !ok {
		return "", false
	}
	v, ok := kv[k]
	return v, ok
}

// Encode produces a canonical byte encoding of s: ids and, within each
// id, metadata keys are visited in sorted order so Encode is a pure
// function of s's logical contents, independent of Go map iteration
// order.
//
//	for each id in sorted(ids):
//	  u32 id_len | id | u32 blob_len | blob | u32 meta_count
//	  for each (k, v) in sorted(meta[id]):
//	    u32 k_len | k | u32 v_len | v
func (s *State) Encode() []byte {
	var out []byte
	putLen := func(n int) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		out = append(out, b[:]...)
	}
	putBytes := func(b []byte) {
		putLen(len(b))
		out = append(out, b...)
	}

	for _, id := range s.IDs() {
		putBytes([]byte(id))
		putBytes(s.blobs[id])

		kv := s.meta[id]
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		putLen(len(keys))
		for _, k := range keys {
			putBytes([]byte(k))
			putBytes([]byte(kv[k]))
		}
	}
	return out
}

// ContentHash returns SHA-256 of s.Encode().
func (s *State) ContentHash() [crypto.Size]byte {
	return crypto.Hash(s.Encode())
}

// Validate reports whether s's declared hash (as recorded elsewhere,
// e.g. in a VersionLog entry) matches its actual bytes.
func (s *State) Validate(declaredHash [crypto.Size]byte) error {
	actual := s.ContentHash()
	if actual != declaredHash {
		return fmt.Errorf("diffengine: state hash mismatch: declared %x, actual %x", declaredHash, actual)
	}
	return nil
}
