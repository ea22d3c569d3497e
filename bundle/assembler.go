package bundle

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/diffengine"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

// defaultSnapshotCacheSize bounds the number of decoded diffengine.State
// values an Assembler keeps around across Build calls sharing a
// VersionLog; decoded snapshots are read-only and reused freely.
const defaultSnapshotCacheSize = 128

// Assembler builds IncidentBundles. It is safe for
// concurrent use: it holds no per-bundle state, only a shared cache of
// already-decoded state snapshots keyed by version ID.
type Assembler struct {
	snapshots *lru.Cache[string, *diffengine.State]
}

// NewAssembler returns an Assembler whose snapshot cache holds at most
// cacheSize decoded states. cacheSize <= 0 uses defaultSnapshotCacheSize.
func NewAssembler(cacheSize int) *Assembler {
	if cacheSize <= 0 {
		cacheSize = defaultSnapshotCacheSize
	}
	cache, err := lru.New[string, *diffengine.State](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which is
		// already guarded above.
		panic(fmt.Sprintf("bundle: building snapshot cache: %v", err))
	}
	return &Assembler{snapshots: cache}
}

// Build assembles and seals a bundle: slice the chain to window,
// verify the slice, collect intersecting versions and diffs, build
// metadata, canonically serialize, seal, and enforce the size budget.
// chain is the full log chain (or a superset of the window); Build
// slices it to window itself. now is the bundle's created_at
// timestamp.
func (a *Assembler) Build(window clock.ClosedWindow, chain []logchain.Entry, key []byte, versionLog *diffengine.VersionLog, metadataExtra map[string]string, maxBytes int, now uint64) (*IncidentBundle, error) {
	sliced := sliceToWindow(chain, window)

	// A window slice rarely starts at the chain's first entry, so
	// verification is seeded from the slice's own head: its carried
	// prev_mac is trustworthy because the head's MAC commits to it
	// under key.
	result := verifyWindowSlice(sliced, key)
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrChainInvalid, result.Err)
	}

	snapshots, diffs, err := a.collectVersions(versionLog, window)
	if err != nil {
		return nil, fmt.Errorf("bundle: collecting versions: %w", err)
	}

	b := &IncidentBundle{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Window:    window,
		Logs:      sliced,
		Snapshots: snapshots,
		Diffs:     diffs,
	}
	b.Metadata = buildMetadata(b, metadataExtra)

	if err := a.sealAndBudget(b, metadataExtra, maxBytes); err != nil {
		return nil, err
	}
	return b, nil
}

// verifyWindowSlice checks a contiguous window slice as a continuation
// of its own first entry's chain state.
func verifyWindowSlice(sliced []logchain.Entry, key []byte) logchain.Result {
	if len(sliced) == 0 {
		return logchain.Result{}
	}
	return logchain.VerifyPrefix(sliced, key, sliced[0].Counter-1, sliced[0].PrevMAC)
}

// sliceToWindow returns the entries of chain whose timestamp falls
// within window's closed interval, preserving order.
func sliceToWindow(chain []logchain.Entry, window clock.ClosedWindow) []logchain.Entry {
	out := make([]logchain.Entry, 0, len(chain))
	for _, e := range chain {
		if window.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out
}

// collectVersions gathers every version committed within window and the
// diff that produced it, using a.snapshots to avoid re-decoding a State
// already seen by a prior Build call.
func (a *Assembler) collectVersions(log *diffengine.VersionLog, window clock.ClosedWindow) ([]SnapshotRef, []DiffRef, error) {
	if log == nil {
		return nil, nil, nil
	}
	ids, err := log.VersionsInWindow(window.Start, window.End)
	if err != nil {
		return nil, nil, fmt.Errorf("list versions in window: %w", err)
	}

	var snapshots []SnapshotRef
	var diffs []DiffRef
	for _, id := range ids {
		state, err := a.decodedSnapshot(log, id)
		if err != nil {
			return nil, nil, err
		}
		snapshots = append(snapshots, SnapshotRef{VersionID: id, Bytes: state.Encode()})

		rec, ok, err := log.Record(id)
		if err != nil {
			return nil, nil, fmt.Errorf("read record %s: %w", id, err)
		}
		if ok {
			diffs = append(diffs, DiffRef{VersionID: rec.VersionID, ParentID: rec.ParentID, Diff: rec.Diff})
		}
	}
	return snapshots, diffs, nil
}

// decodedSnapshot returns the State at versionID, serving from cache when
// present.
func (a *Assembler) decodedSnapshot(log *diffengine.VersionLog, versionID string) (*diffengine.State, error) {
	if state, ok := a.snapshots.Get(versionID); ok {
		return state, nil
	}
	state, ok, err := log.Snapshot(versionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", versionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("bundle: version %s has a commit record but no snapshot", versionID)
	}
	a.snapshots.Add(versionID, state)
	return state, nil
}

// buildMetadata assembles the required metadata fields, merging in any
// caller-supplied extras. Extras never override a required key.
func buildMetadata(b *IncidentBundle, extra map[string]string) map[string]string {
	m := make(map[string]string, len(extra)+8)
	for k, v := range extra {
		m[k] = v
	}
	m["schema_version"] = SchemaVersion
	m["log_count"] = strconv.Itoa(len(b.Logs))
	m["snapshot_count"] = strconv.Itoa(len(b.Snapshots))
	m["diff_count"] = strconv.Itoa(len(b.Diffs))
	if len(b.Logs) > 0 {
		m["first_counter"] = strconv.FormatUint(b.Logs[0].Counter, 10)
		m["last_counter"] = strconv.FormatUint(b.Logs[len(b.Logs)-1].Counter, 10)
	}
	return m
}

// sealAndBudget computes size_bytes and seal, and enforces the size
// budget: on overflow, DEBUG/TRACE log entries are dropped (oldest
// first), the metadata counts rebuilt from the caller's original
// extras, and the seal recomputed, before finally reporting SizeError.
func (a *Assembler) sealAndBudget(b *IncidentBundle, metadataExtra map[string]string, maxBytes int) error {
	for {
		sizeBytes, seal, err := computeSeal(b)
		if err != nil {
			return fmt.Errorf("bundle: computing seal: %w", err)
		}
		if sizeBytes <= maxBytes {
			b.SizeBytes = sizeBytes
			b.Seal = seal
			return nil
		}
		if !dropOneDebugOrTrace(b) {
			return &SizeError{Actual: sizeBytes, Max: maxBytes}
		}
		b.Metadata = buildMetadata(b, metadataExtra)
	}
}

// dropOneDebugOrTrace removes the first DEBUG or TRACE entry from
// b.Logs, reporting whether one was found.
func dropOneDebugOrTrace(b *IncidentBundle) bool {
	for i, e := range b.Logs {
		if e.Level == logchain.LevelDebug || e.Level == logchain.LevelTrace {
			b.Logs = append(b.Logs[:i:i], b.Logs[i+1:]...)
			return true
		}
	}
	return false
}
