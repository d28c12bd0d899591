package remote

import (
	"testing"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

func newTestSnapshotLog(t *testing.T) *SnapshotLog {
	t.Helper()
	root := t.TempDir()
	if _, err := dsg.ControlDirectory(root); err != nil {
		t.Fatalf("creating control directory: %v", err)
	}
	return NewSnapshotLog(root)
}

func TestSnapshotLogEmptyLoad(t *testing.T) {
	log := newTestSnapshotLog(t)

	snapshots, err := log.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snapshots) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(snapshots))
	}

	latest, err := log.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil latest on an empty log")
	}

	id, err := log.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id != "s1" {
		t.Fatalf("expected s1, got %s", id)
	}
}

func TestSnapshotLogAppendChain(t *testing.T) {
	log := newTestSnapshotLog(t)

	first := Snapshot{SnapshotID: "s1", CreatedAt: time.Now(), CreatedBy: "alice", Message: "initial import"}
	if err := log.Append(first); err != nil {
		t.Fatalf("Append first: %v", err)
	}

	s1 := "s1"
	second := Snapshot{SnapshotID: "s2", CreatedAt: time.Now(), CreatedBy: "bob", Message: "second commit", Previous: &s1}
	if err := log.Append(second); err != nil {
		t.Fatalf("Append second: %v", err)
	}

	snapshots, err := log.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}

	id, err := log.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id != "s3" {
		t.Fatalf("expected s3, got %s", id)
	}
}

func TestSnapshotLogRejectsBrokenChain(t *testing.T) {
	log := newTestSnapshotLog(t)

	if err := log.Append(Snapshot{SnapshotID: "s1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Append first: %v", err)
	}

	wrongPrevious := "not-s1"
	err := log.Append(Snapshot{SnapshotID: "s2", CreatedAt: time.Now(), Previous: &wrongPrevious})
	kind, ok := errkind.KindOf(err)
	if !ok || kind != errkind.Consistency {
		t.Fatalf("expected a Consistency error for a broken chain, got %v", err)
	}
}
