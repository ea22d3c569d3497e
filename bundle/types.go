// Package bundle implements the incident bundle assembler and its
// offline, pure-function verifier. A bundle fixes a time window,
// collects the window's log slice and state versions, and seals them
// under a content hash auditors can re-check without any live state.
package bundle

import (
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/diffengine"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

// SchemaVersion is the declared schema_version of every bundle this
// package produces.
const SchemaVersion = "1.0"

// SnapshotRef is one state snapshot captured in a bundle: the raw,
// canonically-encoded bytes of a diffengine.State at VersionID.
type SnapshotRef struct {
	VersionID string
	Bytes     []byte
}

// DiffRef is one diff transition captured in a bundle, in the same
// parent-ordered sequence the originating VersionLog committed them.
type DiffRef struct {
	VersionID string
	ParentID  string
	Diff      diffengine.Diff
}

// IncidentBundle is the sealed artifact: a time window's worth of log
// entries, the state versions and diffs whose commit time intersects
// that window, and a metadata map, all bound together by a SHA-256
// seal over their canonical serialization.
type IncidentBundle struct {
	ID        string
	CreatedAt uint64
	Window    clock.ClosedWindow

	Logs      []logchain.Entry
	Snapshots []SnapshotRef
	Diffs     []DiffRef
	Metadata  map[string]string

	SizeBytes int
	Seal      [crypto.Size]byte
}
