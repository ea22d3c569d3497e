package diffengine

import (
	"bytes"
	"fmt"
)

// InvertibilityStressTest runs a 10,000 apply/revert cycle check (the
// same property TestInvertibilityStressCycle exercises) as a library
// function, for use by the version_verifier CLI.
// It returns nil if the state was byte-identical to its origin after
// every cycle.
func InvertibilityStressTest() error {
	const cycles = 10000

	e := NewEngine()
	s0 := NewState()
	s0.blobs["a"] = []byte("1")
	s0.blobs["b"] = []byte("2")

	diffs := []Diff{
		Modify("a", []byte("1"), []byte("one")),
		Add("c", []byte("3")),
		MetaAdd("b", "tag", "important"),
	}

	s := s0
	for i := 0; i < cycles; i++ {
		cur := s
		var err error
		for _, d := range diffs {
			cur, err = e.Apply(cur, d)
			if err != nil {
				return fmt.Errorf("diffengine: cycle %d apply failed: %w", i, err)
			}
		}
		for j := len(diffs) - 1; j >= 0; j-- {
			cur, err = e.Revert(cur, diffs[j])
			if err != nil {
				return fmt.Errorf("diffengine: cycle %d revert failed: %w", i, err)
			}
		}
		if !bytes.Equal(cur.Encode(), s0.Encode()) {
			return fmt.Errorf("diffengine: cycle %d: state diverged from origin", i)
		}
		s = cur
	}
	return nil
}
