package diffengine

import (
	"bytes"
	"fmt"
	"testing"
)

func stateWith(kv map[string]string) *State {
	s := NewState()
	for id, v := range kv {
		s.blobs[id] = []byte(v)
	}
	return s
}

// Applying Modify(id="x", old="A", new="B") to {x:"A"} yields {x:"B"};
// reverting yields {x:"A"} again, byte-identical.
func TestModifyRevertRoundTrip(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"x": "A"})

	s1, err := e.Apply(s0, Modify("x", []byte("A"), []byte("B")))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	v, ok := s1.Get("x")
	if !ok || string(v) != "B" {
		t.Fatalf("after apply, x = %q, ok=%v, want B", v, ok)
	}

	s2, err := e.Revert(s1, Modify("x", []byte("A"), []byte("B")))
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if !bytes.Equal(s2.Encode(), s0.Encode()) {
		t.Fatalf("revert(apply(s,d)) != s")
	}
}

func TestAddRevertRoundTrip(t *testing.T) {
	e := NewEngine()
	s0 := NewState()
	d := Add("y", []byte("payload"))

	s1, err := e.Apply(s0, d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s2, err := e.Revert(s1, d)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if !bytes.Equal(s2.Encode(), s0.Encode()) {
		t.Fatalf("revert(apply(s,d)) != s")
	}
}

func TestDeleteRevertRoundTrip(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"z": "gone-soon"})
	d := Delete("z", []byte("gone-soon"))

	s1, err := e.Apply(s0, d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := s1.Get("z"); ok {
		t.Fatalf("expected z removed after Delete")
	}
	s2, err := e.Revert(s1, d)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if !bytes.Equal(s2.Encode(), s0.Encode()) {
		t.Fatalf("revert(apply(s,d)) != s")
	}
}

func TestMetaAddDelRoundTrip(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"x": "A"})
	d := MetaAdd("x", "owner", "alice")

	s1, err := e.Apply(s0, d)
	if err != nil {
		t.Fatalf("Apply MetaAdd: %v", err)
	}
	v, ok := s1.Meta("x", "owner")
	if !ok || v != "alice" {
		t.Fatalf("Meta(x, owner) = %q, ok=%v, want alice", v, ok)
	}

	s2, err := e.Revert(s1, d)
	if err != nil {
		t.Fatalf("Revert MetaAdd: %v", err)
	}
	if !bytes.Equal(s2.Encode(), s0.Encode()) {
		t.Fatalf("revert(apply(s,MetaAdd)) != s")
	}

	d2 := MetaDel("x", "owner", "alice")
	s3, err := e.Apply(s1, d2)
	if err != nil {
		t.Fatalf("Apply MetaDel: %v", err)
	}
	if !bytes.Equal(s3.Encode(), s0.Encode()) {
		t.Fatalf("apply(s1, MetaDel) != s0")
	}
	s4, err := e.Revert(s3, d2)
	if err != nil {
		t.Fatalf("Revert MetaDel: %v", err)
	}
	if !bytes.Equal(s4.Encode(), s1.Encode()) {
		t.Fatalf("revert(apply(s,MetaDel)) != s")
	}
}

func TestComposeRoundTrip(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"x": "A"})
	d := ComposeDiff(
		Modify("x", []byte("A"), []byte("B")),
		Add("y", []byte("fresh")),
	)

	s1, err := e.Apply(s0, d)
	if err != nil {
		t.Fatalf("Apply Compose: %v", err)
	}
	if v, _ := s1.Get("x"); string(v) != "B" {
		t.Fatalf("x = %q, want B", v)
	}
	if v, _ := s1.Get("y"); string(v) != "fresh" {
		t.Fatalf("y = %q, want fresh", v)
	}

	s2, err := e.Revert(s1, d)
	if err != nil {
		t.Fatalf("Revert Compose: %v", err)
	}
	if !bytes.Equal(s2.Encode(), s0.Encode()) {
		t.Fatalf("revert(apply(s,Compose)) != s")
	}
}

func TestApplyAddDuplicateIDFails(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"x": "A"})
	_, err := e.Apply(s0, Add("x", []byte("B")))
	var pf *PreconditionFailed
	if err == nil {
		t.Fatalf("expected PreconditionFailed")
	}
	if !asPreconditionFailed(err, &pf) {
		t.Fatalf("expected *PreconditionFailed, got %T", err)
	}
}

func TestApplyModifyMismatchedOldLeavesStateUnchanged(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"x": "A"})
	result, err := e.Apply(s0, Modify("x", []byte("WRONG"), []byte("B")))
	if err == nil {
		t.Fatalf("expected PreconditionFailed")
	}
	if result != s0 {
		t.Fatalf("failed apply must return the original state, not a mutated clone")
	}
	v, _ := s0.Get("x")
	if string(v) != "A" {
		t.Fatalf("original state mutated: x = %q", v)
	}
}

func TestApplyComposeFailureLeavesStateUnchanged(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"x": "A"})
	// first sub-diff succeeds, second fails: the whole Compose must be a no-op.
	d := ComposeDiff(
		Add("y", []byte("new")),
		Modify("x", []byte("WRONG"), []byte("B")),
	)
	result, err := e.Apply(s0, d)
	if err == nil {
		t.Fatalf("expected PreconditionFailed")
	}
	if result != s0 {
		t.Fatalf("failed Compose apply must return the original state")
	}
	if _, ok := s0.Get("y"); ok {
		t.Fatalf("partial Compose application leaked into original state")
	}
}

// Metadata attaches to an existing blob: a pair on an absent id would
// be skipped by Encode (which enumerates blob ids) and silently lost on
// any snapshot round-trip, so both meta diffs refuse it up front.
func TestApplyMetaAddAbsentIDFails(t *testing.T) {
	e := NewEngine()
	s0 := NewState()
	result, err := e.Apply(s0, MetaAdd("ghost", "k", "v"))
	var pf *PreconditionFailed
	if err == nil || !asPreconditionFailed(err, &pf) {
		t.Fatalf("expected *PreconditionFailed, got %T: %v", err, err)
	}
	if result != s0 {
		t.Fatalf("failed apply must return the original state")
	}
	if len(s0.Encode()) != 0 {
		t.Fatalf("state mutated by rejected MetaAdd")
	}
}

func TestApplyMetaDelAbsentIDFails(t *testing.T) {
	e := NewEngine()
	s0 := NewState()
	if _, err := e.Apply(s0, MetaDel("ghost", "k", "v")); err == nil {
		t.Fatalf("expected PreconditionFailed for MetaDel on an absent id")
	}
}

func TestApplyDeleteAbsentIDFails(t *testing.T) {
	e := NewEngine()
	s0 := NewState()
	if _, err := e.Apply(s0, Delete("missing", []byte("x"))); err == nil {
		t.Fatalf("expected PreconditionFailed for deleting an absent id")
	}
}

// TestInvertibilityStressCycle applies and reverts a mixed diff list
// 10,000 times and checks the state is byte-identical to where it
// started.
func TestInvertibilityStressCycle(t *testing.T) {
	e := NewEngine()
	s0 := stateWith(map[string]string{"a": "1", "b": "2"})
	diffs := []Diff{
		Modify("a", []byte("1"), []byte("one")),
		Add("c", []byte("3")),
		MetaAdd("b", "tag", "important"),
	}

	s := s0
	for i := 0; i < 10000; i++ {
		cur := s
		var err error
		for _, d := range diffs {
			cur, err = e.Apply(cur, d)
			if err != nil {
				t.Fatalf("cycle %d apply: %v", i, err)
			}
		}
		for j := len(diffs) - 1; j >= 0; j-- {
			cur, err = e.Revert(cur, diffs[j])
			if err != nil {
				t.Fatalf("cycle %d revert: %v", i, err)
			}
		}
		if !bytes.Equal(cur.Encode(), s0.Encode()) {
			t.Fatalf("cycle %d: state diverged from origin", i)
		}
		s = cur
	}
}

func TestChunkedCopyPreservesLargePayload(t *testing.T) {
	e := NewEngine()
	large := bytes.Repeat([]byte{0xAB}, ChunkThreshold+1234)
	s0 := NewState()
	d := Add("big", large)

	s1, err := e.Apply(s0, d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	v, ok := s1.Get("big")
	if !ok || !bytes.Equal(v, large) {
		t.Fatalf("chunked copy corrupted large payload")
	}
}

func TestStateEncodeDeterministic(t *testing.T) {
	a := stateWith(map[string]string{"z": "1", "a": "2", "m": "3"})
	b := stateWith(map[string]string{"m": "3", "z": "1", "a": "2"})
	if !bytes.Equal(a.Encode(), b.Encode()) {
		t.Fatalf("Encode depends on insertion order")
	}
}

func TestContentHashChangesWithContent(t *testing.T) {
	a := stateWith(map[string]string{"x": "A"})
	b := stateWith(map[string]string{"x": "B"})
	if a.ContentHash() == b.ContentHash() {
		t.Fatalf("distinct states hashed equal")
	}
}

// asPreconditionFailed is a small helper so tests can assert the
// concrete error type without importing errors.As boilerplate per case.
func asPreconditionFailed(err error, target **PreconditionFailed) bool {
	pf, ok := err.(*PreconditionFailed)
	if ok {
		*target = pf
	}
	return ok
}

func ExampleState_Encode() {
	s := stateWith(map[string]string{"x": "A"})
	fmt.Println(len(s.Encode()) > 0)
	// Output: true
}
