package diffengine

import (
	"bytes"
	"sync"
)

// ChunkThreshold is the size above which Add/Modify payload bytes are
// copied in fixed-size chunks rather than with one bulk copy, keeping
// individual copy calls bounded. Chunking changes only
// how the copy loop is structured, never atomicity: the chunked copy
// always completes entirely into a value that is written into the
// working clone, and Apply/Revert return that clone only once the
// whole diff has checked out.
const ChunkThreshold = 1 << 20

const chunkSize = 64 * 1024

// chunkedCopy copies src in chunkSize pieces when it is large, and in
// one shot otherwise.
func chunkedCopy(src []byte) []byte {
	if len(src) <= ChunkThreshold {
		return append([]byte(nil), src...)
	}
	dst := make([]byte, len(src))
	for off := 0; off < len(src); off += chunkSize {
		end := off + chunkSize
		if end > len(src) {
			end = len(src)
		}
		copy(dst[off:end], src[off:end])
	}
	return dst
}

// Engine applies and reverts Diffs against a State. All mutation is
// serialized through a single administrator-actor mutex; readers work
// from immutable State snapshots returned by Apply/Revert and never
// need to take Engine's lock.
type Engine struct {
	mu sync.Mutex
}

// NewEngine constructs an Engine.
func NewEngine() *Engine { return &Engine{} }

// Apply returns the State that results from applying diff to state.
// On any PreconditionFailed, the original state is returned unchanged
// alongside the error: apply is atomic per diff, never partial.
func (e *Engine) Apply(state *State, diff Diff) (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clone := state.Clone()
	if err := applyInto(clone, diff); err != nil {
		return state, err
	}
	return clone, nil
}

// Revert returns the State that results from undoing diff against
// state, i.e. the State prior to diff having been applied. Atomic per
// diff, like Apply.
func (e *Engine) Revert(state *State, diff Diff) (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clone := state.Clone()
	if err := revertInto(clone, diff); err != nil {
		return state, err
	}
	return clone, nil
}

func applyInto(s *State, d Diff) error {
	switch d.Kind {
	case KindAdd:
		if _, exists := s.blobs[d.ID]; exists {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "id already exists"}
		}
		s.blobs[d.ID] = chunkedCopy(d.New)
		return nil

	case KindDelete:
		current, exists := s.blobs[d.ID]
		if !exists {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "id absent"}
		}
		if !bytes.Equal(current, d.Old) {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "current bytes do not match declared old bytes"}
		}
		delete(s.blobs, d.ID)
		return nil

	case KindModify:
		current, exists := s.blobs[d.ID]
		if !exists {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "id absent"}
		}
		if !bytes.Equal(current, d.Old) {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "current bytes do not match declared old bytes"}
		}
		s.blobs[d.ID] = chunkedCopy(d.New)
		return nil

	case KindMetaAdd:
		return metaAddInto(s, d.ID, d.MetaKey, d.MetaVal)

	case KindMetaDel:
		return metaDelInto(s, d.ID, d.MetaKey, d.MetaVal)

	case KindCompose:
		if err := applyInto(s, *d.Left); err != nil {
			return err
		}
		return applyInto(s, *d.Right)

	default:
		return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "unknown diff kind"}
	}
}

func revertInto(s *State, d Diff) error {
	switch d.Kind {
	case KindAdd:
		current, exists := s.blobs[d.ID]
		if !exists {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "id absent, cannot revert Add"}
		}
		if !bytes.Equal(current, d.New) {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "current bytes do not match diff's added bytes"}
		}
		delete(s.blobs, d.ID)
		return nil

	case KindDelete:
		if _, exists := s.blobs[d.ID]; exists {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "id already present, cannot revert Delete"}
		}
		s.blobs[d.ID] = chunkedCopy(d.Old)
		return nil

	case KindModify:
		current, exists := s.blobs[d.ID]
		if !exists {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "id absent"}
		}
		if !bytes.Equal(current, d.New) {
			return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "current bytes do not match diff's new bytes"}
		}
		s.blobs[d.ID] = chunkedCopy(d.Old)
		return nil

	case KindMetaAdd:
		return metaDelInto(s, d.ID, d.MetaKey, d.MetaVal)

	case KindMetaDel:
		return metaAddInto(s, d.ID, d.MetaKey, d.MetaVal)

	case KindCompose:
		if err := revertInto(s, *d.Right); err != nil {
			return err
		}
		return revertInto(s, *d.Left)

	default:
		return &PreconditionFailed{Op: d.Kind, ID: d.ID, Reason: "unknown diff kind"}
	}
}

func metaAddInto(s *State, id, k, v string) error {
	// Metadata hangs off a blob: Encode/ContentHash enumerate blob ids
	// only, so a pair attached to an absent id would be invisible to
	// hashing and lost on any snapshot round-trip.
	if _, exists := s.blobs[id]; !exists {
		return &PreconditionFailed{Op: KindMetaAdd, ID: id, Reason: "id absent"}
	}
	kv, ok := s.meta[id]
	if !ok {
		kv = map[string]string{}
		s.meta[id] = kv
	}
	if _, exists := kv[k]; exists {
		return &PreconditionFailed{Op: KindMetaAdd, ID: id, Reason: "metadata key already set"}
	}
	kv[k] = v
	return nil
}

func metaDelInto(s *State, id, k, v string) error {
	if _, exists := s.blobs[id]; !exists {
		return &PreconditionFailed{Op: KindMetaDel, ID: id, Reason: "id absent"}
	}
	kv, ok := s.meta[id]
	if !ok {
		return &PreconditionFailed{Op: KindMetaDel, ID: id, Reason: "id has no metadata"}
	}
	current, exists := kv[k]
	if !exists || current != v {
		return &PreconditionFailed{Op: KindMetaDel, ID: id, Reason: "metadata pair does not match"}
	}
	delete(kv, k)
	return nil
}
