package remote

import (
	"testing"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
)

func newTestTagTable(t *testing.T) *TagTable {
	t.Helper()
	root := t.TempDir()
	if _, err := dsg.ControlDirectory(root); err != nil {
		t.Fatalf("creating control directory: %v", err)
	}
	return NewTagTable(root)
}

func TestTagTableSetAndGet(t *testing.T) {
	table := newTestTagTable(t)

	if err := table.Set("v1.0", Tag{SnapshotID: "s12", CreatedAt: time.Now(), Message: "first release"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	tag, ok, err := table.Get("v1.0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected v1.0 to be present")
	}
	if tag.SnapshotID != "s12" {
		t.Fatalf("expected s12, got %s", tag.SnapshotID)
	}

	_, ok, err = table.Get("v2.0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected v2.0 to be absent")
	}
}

func TestTagTableSetIsIdempotent(t *testing.T) {
	table := newTestTagTable(t)

	tag := Tag{SnapshotID: "s5", CreatedAt: time.Now(), Message: "beta"}
	if err := table.Set("beta", tag); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := table.Set("beta", tag); err != nil {
		t.Fatalf("Set (repeat): %v", err)
	}

	tags, err := table.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("expected exactly one tag, got %d", len(tags))
	}
}
