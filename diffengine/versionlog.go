package diffengine

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketDiffs     = []byte("diffs")
	bucketParents   = []byte("parents")
	bucketCommits   = []byte("commits")
)

// VersionRecord is one committed transition in a VersionLog: applying
// Diff to the State named by Parent (the zero version ID for the
// first commit) produces the State named by this record's own version
// ID, committed at CommitTime.
type VersionRecord struct {
	VersionID  string
	ParentID   string
	Diff       Diff
	CommitTime uint64 // wall-clock nanoseconds
}

// VersionLog persists State snapshots and the Diffs linking them,
// backed by go.etcd.io/bbolt. A State is written by a single
// administrator actor and referenced by any number of bundles; bbolt's
// single-writer/multi-reader transactions match that split directly.
type VersionLog struct {
	db *bolt.DB
}

// OpenVersionLog opens or creates a bbolt database at path.
func OpenVersionLog(path string) (*VersionLog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("diffengine: open bbolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshots, bucketDiffs, bucketParents, bucketCommits} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &VersionLog{db: db}, nil
}

// PutSnapshot durably records state under versionID.
func (l *VersionLog) PutSnapshot(versionID string, state *State) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(versionID), state.Encode())
	})
}

// Snapshot retrieves the State recorded under versionID.
func (l *VersionLog) Snapshot(versionID string) (*State, bool, error) {
	var raw []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(versionID))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	state, err := decodeState(raw)
	if err != nil {
		return nil, false, fmt.Errorf("diffengine: decode snapshot %s: %w", versionID, err)
	}
	return state, true, nil
}

// Commit records a VersionRecord: the diff taking parentID's state to
// versionID's state, committed at commitTime. Commit does not itself
// compute or store the resulting State; callers apply the diff via
// Engine and call PutSnapshot separately, keeping the log a pure
// record of transitions.
func (l *VersionLog) Commit(versionID, parentID string, diff Diff, commitTime uint64) error {
	encoded, err := encodeDiff(diff)
	if err != nil {
		return fmt.Errorf("diffengine: encode diff: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketDiffs).Put([]byte(versionID), encoded); err != nil {
			return err
		}
		if err := tx.Bucket(bucketParents).Put([]byte(versionID), []byte(parentID)); err != nil {
			return err
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], commitTime)
		return tx.Bucket(bucketCommits).Put([]byte(versionID), ts[:])
	})
}

// Record reconstructs the VersionRecord committed under versionID.
func (l *VersionLog) Record(versionID string) (VersionRecord, bool, error) {
	var rec VersionRecord
	var diffBytes, parentBytes, tsBytes []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		diffBytes = tx.Bucket(bucketDiffs).Get([]byte(versionID))
		parentBytes = tx.Bucket(bucketParents).Get([]byte(versionID))
		tsBytes = tx.Bucket(bucketCommits).Get([]byte(versionID))
		return nil
	})
	if err != nil {
		return rec, false, err
	}
	if diffBytes == nil {
		return rec, false, nil
	}
	diff, err := decodeDiff(diffBytes)
	if err != nil {
		return rec, false, fmt.Errorf("diffengine: decode diff %s: %w", versionID, err)
	}
	rec.VersionID = versionID
	rec.ParentID = string(parentBytes)
	rec.Diff = diff
	if len(tsBytes) == 8 {
		rec.CommitTime = binary.BigEndian.Uint64(tsBytes)
	}
	return rec, true, nil
}

// VersionsInWindow returns, in commit order, the version IDs whose
// CommitTime falls in the closed interval [start, end].
func (l *VersionLog) VersionsInWindow(start, end uint64) ([]string, error) {
	type stamped struct {
		id string
		ts uint64
	}
	var all []stamped
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommits).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return nil
			}
			ts := binary.BigEndian.Uint64(v)
			if ts >= start && ts <= end {
				all = append(all, stamped{id: string(k), ts: ts})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ts != all[j].ts {
			return all[i].ts < all[j].ts
		}
		return all[i].id < all[j].id
	})
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.id
	}
	return out, nil
}

// Close closes the underlying database handle.
func (l *VersionLog) Close() error {
	return l.db.Close()
}
