package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/clock"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/diffengine"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

const (
	manifestPath  = "manifest.json"
	chainPath     = "logs/chain.bin"
	snapshotDir   = "state/snapshots/"
	diffsPath     = "state/diffs.bin"
	timelinePath  = "timeline.html"
	metadataPath  = "metadata.json"
)

// manifest is the JSON body of /manifest.json.
type manifest struct {
	ID            string `json:"id"`
	CreatedAt     uint64 `json:"created_at"`
	WindowStart   uint64 `json:"window_start"`
	WindowEnd     uint64 `json:"window_end"`
	Seal          string `json:"seal"`
	SchemaVersion string `json:"schema_version"`
	SizeBytes     int    `json:"size_bytes"`
}

// WriteArchive serializes b to the bundle's zip layout.
func WriteArchive(b *IncidentBundle) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeJSONEntry(zw, manifestPath, manifest{
		ID:            b.ID,
		CreatedAt:     b.CreatedAt,
		WindowStart:   b.Window.Start,
		WindowEnd:     b.Window.End,
		Seal:          hex.EncodeToString(b.Seal[:]),
		SchemaVersion: SchemaVersion,
		SizeBytes:     b.SizeBytes,
	}); err != nil {
		return nil, err
	}

	if err := writeChain(zw, b.Logs); err != nil {
		return nil, err
	}

	for _, s := range b.Snapshots {
		w, err := zw.Create(snapshotDir + s.VersionID)
		if err != nil {
			return nil, fmt.Errorf("bundle: create snapshot entry %s: %w", s.VersionID, err)
		}
		if _, err := w.Write(s.Bytes); err != nil {
			return nil, fmt.Errorf("bundle: write snapshot entry %s: %w", s.VersionID, err)
		}
	}

	if err := writeDiffs(zw, b.Diffs); err != nil {
		return nil, err
	}

	if err := writeTextEntry(zw, timelinePath, Timeline(b)); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, metadataPath, b.Metadata); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", name, err)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bundle: marshal %s: %w", name, err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("bundle: write %s: %w", name, err)
	}
	return nil
}

func writeTextEntry(zw *zip.Writer, name, body string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", name, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("bundle: write %s: %w", name, err)
	}
	return nil
}

// writeChain serializes logs via logchain.Entry.Encode, length-prefixed
// per entry so the reader need not know entry count up front.
func writeChain(zw *zip.Writer, logs []logchain.Entry) error {
	w, err := zw.Create(chainPath)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", chainPath, err)
	}
	for _, e := range logs {
		if err := writeLengthPrefixed(w, e.Encode(nil)); err != nil {
			return fmt.Errorf("bundle: write log entry: %w", err)
		}
	}
	return nil
}

// writeDiffs serializes diffs via diffengine.EncodeDiff, length-prefixed
// per record alongside its version/parent IDs, in the parent-ordered
// sequence the bundle carries them in.
func writeDiffs(zw *zip.Writer, diffs []DiffRef) error {
	w, err := zw.Create(diffsPath)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", diffsPath, err)
	}
	for _, d := range diffs {
		encodedDiff, err := diffengine.EncodeDiff(d.Diff)
		if err != nil {
			return fmt.Errorf("bundle: encode diff %s: %w", d.VersionID, err)
		}
		if err := writeLengthPrefixed(w, []byte(d.VersionID)); err != nil {
			return err
		}
		if err := writeLengthPrefixed(w, []byte(d.ParentID)); err != nil {
			return err
		}
		if err := writeLengthPrefixed(w, encodedDiff); err != nil {
			return err
		}
	}
	return nil
}

func writeLengthPrefixed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	lenBuf[0] = byte(len(b) >> 24)
	lenBuf[1] = byte(len(b) >> 16)
	lenBuf[2] = byte(len(b) >> 8)
	lenBuf[3] = byte(len(b))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadArchive parses the zip layout WriteArchive produces back into an
// IncidentBundle. It does not re-verify the chain or seal; callers that
// need that should use Verify instead.
func ReadArchive(archiveBytes []byte, maxMessageBytes uint32) (*IncidentBundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("bundle: open archive: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var m manifest
	if err := readJSONEntry(files, manifestPath, &m); err != nil {
		return nil, err
	}

	logs, err := readChain(files, maxMessageBytes)
	if err != nil {
		return nil, err
	}

	diffs, err := readDiffs(files)
	if err != nil {
		return nil, err
	}

	var snapshots []SnapshotRef
	for _, d := range diffs {
		f, ok := files[snapshotDir+d.VersionID]
		if !ok {
			continue
		}
		raw, err := readAll(f)
		if err != nil {
			return nil, fmt.Errorf("bundle: read snapshot %s: %w", d.VersionID, err)
		}
		snapshots = append(snapshots, SnapshotRef{VersionID: d.VersionID, Bytes: raw})
	}

	var metadata map[string]string
	if err := readJSONEntry(files, metadataPath, &metadata); err != nil {
		return nil, err
	}

	seal, err := decodeSeal(m.Seal)
	if err != nil {
		return nil, err
	}

	return &IncidentBundle{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Window:    clock.ClosedWindow{Start: m.WindowStart, End: m.WindowEnd},
		Logs:      logs,
		Snapshots: snapshots,
		Diffs:     diffs,
		Metadata:  metadata,
		SizeBytes: m.SizeBytes,
		Seal:      seal,
	}, nil
}

func decodeSeal(hexSeal string) ([crypto.Size]byte, error) {
	var seal [crypto.Size]byte
	raw, err := hex.DecodeString(hexSeal)
	if err != nil || len(raw) != crypto.Size {
		return seal, fmt.Errorf("%w: malformed manifest seal", ErrInvalidSchema)
	}
	copy(seal[:], raw)
	return seal, nil
}

func readJSONEntry(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrInvalidSchema, name)
	}
	raw, err := readAll(f)
	if err != nil {
		return fmt.Errorf("bundle: read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed %s: %v", ErrInvalidSchema, name, err)
	}
	return nil
}

func readAll(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func readChain(files map[string]*zip.File, maxMessageBytes uint32) ([]logchain.Entry, error) {
	f, ok := files[chainPath]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSchema, chainPath)
	}
	raw, err := readAll(f)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", chainPath, err)
	}
	var entries []logchain.Entry
	for len(raw) > 0 {
		chunk, rest, err := readLengthPrefixed(raw)
		if err != nil {
			return nil, fmt.Errorf("bundle: read log entry: %w", err)
		}
		entry, _, err := logchain.DecodeEntry(chunk, maxMessageBytes)
		if err != nil {
			return nil, fmt.Errorf("bundle: decode log entry: %w", err)
		}
		entries = append(entries, entry)
		raw = rest
	}
	return entries, nil
}

func readDiffs(files map[string]*zip.File) ([]DiffRef, error) {
	f, ok := files[diffsPath]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSchema, diffsPath)
	}
	raw, err := readAll(f)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", diffsPath, err)
	}
	var diffs []DiffRef
	for len(raw) > 0 {
		versionIDBytes, rest, err := readLengthPrefixed(raw)
		if err != nil {
			return nil, fmt.Errorf("bundle: read diff version id: %w", err)
		}
		parentIDBytes, rest2, err := readLengthPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("bundle: read diff parent id: %w", err)
		}
		diffBytes, rest3, err := readLengthPrefixed(rest2)
		if err != nil {
			return nil, fmt.Errorf("bundle: read diff body: %w", err)
		}
		diff, err := diffengine.DecodeDiff(diffBytes)
		if err != nil {
			return nil, fmt.Errorf("bundle: decode diff: %w", err)
		}
		diffs = append(diffs, DiffRef{VersionID: string(versionIDBytes), ParentID: string(parentIDBytes), Diff: diff})
		raw = rest3
	}
	return diffs, nil
}

func readLengthPrefixed(src []byte) (chunk, rest []byte, err error) {
	if len(src) < 4 {
		return nil, nil, fmt.Errorf("short length prefix")
	}
	n := int(src[0])<<24 | int(src[1])<<16 | int(src[2])<<8 | int(src[3])
	if len(src)-4 < n {
		return nil, nil, fmt.Errorf("short record: need %d, have %d", n, len(src)-4)
	}
	return src[4 : 4+n], src[4+n:], nil
}

