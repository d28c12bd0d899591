package remote

import (
	"testing"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
)

func newTestArchiveIndex(t *testing.T) *ArchiveIndex {
	t.Helper()
	root := t.TempDir()
	if _, err := dsg.ControlDirectory(root); err != nil {
		t.Fatalf("creating control directory: %v", err)
	}
	return NewArchiveIndex(root)
}

func TestArchiveIndexAppendAndLookup(t *testing.T) {
	index := newTestArchiveIndex(t)

	entry := ArchiveEntry{SnapshotID: "s1", FileName: "s1.json", Digest: "deadbeef"}
	if err := index.Append(entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	found, ok, err := index.Lookup("s1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected s1 to be found")
	}
	if found.FileName != "s1.json" {
		t.Fatalf("expected s1.json, got %s", found.FileName)
	}

	_, ok, err = index.Lookup("s2")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("expected s2 to be absent")
	}
}

func TestArchiveIndexAppendAccumulates(t *testing.T) {
	index := newTestArchiveIndex(t)

	for i, id := range []string{"s1", "s2", "s3"} {
		entry := ArchiveEntry{SnapshotID: id, FileName: id + ".json", Digest: "hash"}
		if err := index.Append(entry); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	entries, err := index.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}
