package bundle

import (
	"bytes"
	"compress/flate"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/diffengine"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

// canonicalLogEntry mirrors logchain.Entry with the MAC fields rendered
// as lowercase hex and the message rendered as a JSON string.
type canonicalLogEntry struct {
	Timestamp uint64 `json:"timestamp"`
	Level     uint8  `json:"level"`
	Message   string `json:"message"`
	Counter   uint64 `json:"counter"`
	PrevMAC   string `json:"prev_mac"`
	MAC       string `json:"mac"`
}

type canonicalSnapshot struct {
	VersionID string `json:"version_id"`
	Bytes     string `json:"bytes"`
}

type canonicalDiff struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id"`
	DiffBytes string `json:"diff_bytes"`
}

// canonicalPayload carries every field that participates in size_bytes
// (everything but size_bytes and seal themselves).
type canonicalPayload struct {
	ID          string              `json:"id"`
	CreatedAt   uint64              `json:"created_at"`
	WindowStart uint64              `json:"window_start"`
	WindowEnd   uint64              `json:"window_end"`
	Logs        []canonicalLogEntry `json:"logs"`
	Snapshots   []canonicalSnapshot `json:"snapshots"`
	Diffs       []canonicalDiff     `json:"diffs"`
	Metadata    map[string]string   `json:"metadata"`
}

// canonicalSealed additionally carries size_bytes, which is computed
// from canonicalPayload and is therefore well-defined before sealing:
// size_bytes is never a function of its own encoded length or of the
// seal, so no fixed point is needed.
type canonicalSealed struct {
	canonicalPayload
	SizeBytes int `json:"size_bytes"`
}

func toCanonicalLogEntry(e logchain.Entry) canonicalLogEntry {
	return canonicalLogEntry{
		Timestamp: e.Timestamp,
		Level:     uint8(e.Level),
		Message:   string(e.Message),
		Counter:   e.Counter,
		PrevMAC:   hex.EncodeToString(e.PrevMAC[:]),
		MAC:       hex.EncodeToString(e.MAC[:]),
	}
}

func toCanonicalSnapshot(s SnapshotRef) canonicalSnapshot {
	return canonicalSnapshot{VersionID: s.VersionID, Bytes: hex.EncodeToString(s.Bytes)}
}

func toCanonicalDiff(d DiffRef) (canonicalDiff, error) {
	encoded, err := diffengine.EncodeDiff(d.Diff)
	if err != nil {
		return canonicalDiff{}, fmt.Errorf("encode diff %s: %w", d.VersionID, err)
	}
	return canonicalDiff{VersionID: d.VersionID, ParentID: d.ParentID, DiffBytes: hex.EncodeToString(encoded)}, nil
}

func buildCanonicalPayload(b *IncidentBundle) (canonicalPayload, error) {
	logs := make([]canonicalLogEntry, len(b.Logs))
	for i, e := range b.Logs {
		logs[i] = toCanonicalLogEntry(e)
	}
	snapshots := make([]canonicalSnapshot, len(b.Snapshots))
	for i, s := range b.Snapshots {
		snapshots[i] = toCanonicalSnapshot(s)
	}
	diffs := make([]canonicalDiff, len(b.Diffs))
	for i, d := range b.Diffs {
		cd, err := toCanonicalDiff(d)
		if err != nil {
			return canonicalPayload{}, err
		}
		diffs[i] = cd
	}
	metadata := b.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return canonicalPayload{
		ID:          b.ID,
		CreatedAt:   b.CreatedAt,
		WindowStart: b.Window.Start,
		WindowEnd:   b.Window.End,
		Logs:        logs,
		Snapshots:   snapshots,
		Diffs:       diffs,
		Metadata:    metadata,
	}, nil
}

// canonicalSizeBytes returns size_bytes for b: the flate-compressed
// length of the canonical serialization of everything in b except
// size_bytes and seal. The size budget holds "under default
// compression" and the archive itself is a compressed container, so
// the budget is measured against compressed bytes: flate at its
// default level, whose output is a deterministic function of the
// input. encoding/json.Marshal sorts
// map[string]string keys alphabetically and emits no extraneous
// whitespace (sorted keys, no whitespace is the canonical form); list
// fields keep their declared, already-deterministic order instead of
// being re-sorted.
func canonicalSizeBytes(b *IncidentBundle) (int, canonicalPayload, error) {
	payload, err := buildCanonicalPayload(b)
	if err != nil {
		return 0, canonicalPayload{}, err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, canonicalPayload{}, fmt.Errorf("marshal canonical payload: %w", err)
	}
	size, err := deflatedLen(encoded)
	if err != nil {
		return 0, canonicalPayload{}, fmt.Errorf("compress canonical payload: %w", err)
	}
	return size, payload, nil
}

// deflatedLen returns the length of src after flate compression at the
// default level.
func deflatedLen(src []byte) (int, error) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(src); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// computeSeal returns size_bytes and seal = SHA256(canonical bytes of
// payload + size_bytes).
func computeSeal(b *IncidentBundle) (int, [crypto.Size]byte, error) {
	sizeBytes, payload, err := canonicalSizeBytes(b)
	if err != nil {
		return 0, [crypto.Size]byte{}, err
	}
	sealed := canonicalSealed{canonicalPayload: payload, SizeBytes: sizeBytes}
	sealedBytes, err := json.Marshal(sealed)
	if err != nil {
		return 0, [crypto.Size]byte{}, fmt.Errorf("marshal sealed payload: %w", err)
	}
	return sizeBytes, crypto.Hash(sealedBytes), nil
}
