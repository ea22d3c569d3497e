package bundle

import (
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

// memStore is a minimal in-memory logchain.Store for assembling test
// fixtures; it has no durability story and exists only to drive
// logchain.Chain.Append in bundle's own tests.
type memStore struct {
	entries     []logchain.Entry
	checkpoints []logchain.Checkpoint
	sealed      bool
}

func (m *memStore) Append(entry logchain.Entry, tail logchain.Tail, checkpoint *logchain.Checkpoint) error {
	m.entries = append(m.entries, entry)
	if checkpoint != nil {
		m.checkpoints = append(m.checkpoints, *checkpoint)
	}
	return nil
}

func (m *memStore) MarkSealed() error {
	m.sealed = true
	return nil
}

func (m *memStore) Tail() (logchain.Tail, bool, error) {
	if len(m.entries) == 0 {
		return logchain.Tail{}, false, nil
	}
	last := m.entries[len(m.entries)-1]
	return logchain.Tail{Counter: last.Counter, MAC: last.MAC, Sealed: m.sealed}, true, nil
}

func (m *memStore) Iter(fromCounter uint64) (<-chan logchain.Entry, func(), error) {
	ch := make(chan logchain.Entry)
	done := make(chan struct{})
	go func() {
		defer close(ch)
		for _, e := range m.entries {
			if e.Counter < fromCounter {
				continue
			}
			select {
			case ch <- e:
			case <-done:
				return
			}
		}
	}()
	var closed bool
	cancel := func() {
		if !closed {
			closed = true
			close(done)
		}
	}
	return ch, cancel, nil
}

func (m *memStore) CheckpointBefore(counter uint64) (logchain.Checkpoint, bool, error) {
	var best logchain.Checkpoint
	found := false
	for _, c := range m.checkpoints {
		if c.Counter <= counter && (!found || c.Counter > best.Counter) {
			best = c
			found = true
		}
	}
	return best, found, nil
}

func (m *memStore) Close() error { return nil }
