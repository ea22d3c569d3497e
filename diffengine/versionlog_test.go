package diffengine

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestVersionLogSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenVersionLog(filepath.Join(dir, "versions.db"))
	if err != nil {
		t.Fatalf("OpenVersionLog: %v", err)
	}
	defer log.Close()

	s := stateWith(map[string]string{"x": "A", "y": "B"})
	if err := log.PutSnapshot("v1", s); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	got, ok, err := log.Snapshot("v1")
	if err != nil || !ok {
		t.Fatalf("Snapshot: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got.Encode(), s.Encode()) {
		t.Fatalf("round-tripped snapshot differs from original")
	}
}

func TestVersionLogCommitAndRecord(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenVersionLog(filepath.Join(dir, "versions.db"))
	if err != nil {
		t.Fatalf("OpenVersionLog: %v", err)
	}
	defer log.Close()

	d := ComposeDiff(
		Modify("x", []byte("A"), []byte("B")),
		Add("z", []byte("new")),
	)
	if err := log.Commit("v2", "v1", d, 1000); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rec, ok, err := log.Record("v2")
	if err != nil || !ok {
		t.Fatalf("Record: ok=%v err=%v", ok, err)
	}
	if rec.ParentID != "v1" || rec.CommitTime != 1000 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Diff.Kind != KindCompose {
		t.Fatalf("Diff.Kind = %v, want Compose", rec.Diff.Kind)
	}
	if rec.Diff.Left.ID != "x" || rec.Diff.Right.ID != "z" {
		t.Fatalf("decoded compose sub-diffs mismatch: %+v", rec.Diff)
	}
}

func TestVersionLogVersionsInWindow(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenVersionLog(filepath.Join(dir, "versions.db"))
	if err != nil {
		t.Fatalf("OpenVersionLog: %v", err)
	}
	defer log.Close()

	log.Commit("v1", "", Add("a", []byte("1")), 100)
	log.Commit("v2", "v1", Add("b", []byte("2")), 200)
	log.Commit("v3", "v2", Add("c", []byte("3")), 300)

	ids, err := log.VersionsInWindow(150, 300)
	if err != nil {
		t.Fatalf("VersionsInWindow: %v", err)
	}
	if len(ids) != 2 || ids[0] != "v2" || ids[1] != "v3" {
		t.Fatalf("VersionsInWindow = %v, want [v2 v3]", ids)
	}
}

func TestDiffCodecRoundTrip(t *testing.T) {
	cases := []Diff{
		Add("id1", []byte("payload")),
		Delete("id2", []byte("old")),
		Modify("id3", []byte("before"), []byte("after")),
		MetaAdd("id4", "k", "v"),
		MetaDel("id5", "k", "v"),
		ComposeDiff(Add("a", []byte("1")), Delete("b", []byte("2"))),
	}
	for _, d := range cases {
		encoded, err := encodeDiff(d)
		if err != nil {
			t.Fatalf("encodeDiff(%v): %v", d.Kind, err)
		}
		decoded, err := decodeDiff(encoded)
		if err != nil {
			t.Fatalf("decodeDiff(%v): %v", d.Kind, err)
		}
		if decoded.Kind != d.Kind || decoded.ID != d.ID {
			t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, d)
		}
	}
}
