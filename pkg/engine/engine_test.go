package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/merge"
	"github.com/HRDAG/dsg-sub001/pkg/remote"
	"github.com/HRDAG/dsg-sub001/pkg/txn"
)

// newTestEngine wires an Engine over two plain directories connected by
// StagedRemoteFilesystem and LocalTransport, the same backends a
// filesystem-mounted remote would use in production.
func newTestEngine(t *testing.T, user string) (*Engine, string, string) {
	t.Helper()
	remoteRoot := t.TempDir()
	if _, err := dsg.ControlDirectory(remoteRoot); err != nil {
		t.Fatalf("creating remote control directory: %v", err)
	}
	eng := newTestEngineOnRemote(t, user, remoteRoot)
	return eng, eng.cfg.LocalRoot, remoteRoot
}

// newTestEngineOnRemote builds another Engine, with its own working
// directory, pointed at an already-existing remote — modeling a second
// client of the same repository.
func newTestEngineOnRemote(t *testing.T, user, remoteRoot string) *Engine {
	t.Helper()
	localRoot := t.TempDir()
	lock := remote.LockAdapter{Lock: remote.NewFileLock(remoteRoot)}
	eng := New(Config{
		LocalRoot:  localRoot,
		RemoteRoot: remoteRoot,
		Remote:     txn.NewStagedRemoteFilesystem(remoteRoot),
		Transport:  txn.NewLocalTransport(t.TempDir()),
		Lock:       lock,
		User:       user,
		Normalize:  true,
	})
	return eng
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestEngineInitUploadsEverything(t *testing.T) {
	eng, localRoot, _ := newTestEngine(t, "alice@example.org")
	writeFile(t, localRoot, "a.txt", "A")
	writeFile(t, localRoot, "b.txt", "B")

	result, err := eng.Init("initial commit")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if result.SnapshotID != "s1" {
		t.Fatalf("expected s1, got %s", result.SnapshotID)
	}
	if result.Plan.Kind != merge.PlanKindInit {
		t.Fatalf("expected init plan kind, got %v", result.Plan.Kind)
	}

	if _, err := os.Stat(dsg.CacheManifestPath(localRoot)); err != nil {
		t.Fatalf("expected cache manifest to be installed: %v", err)
	}
}

func TestEngineStatusIsIdempotentAfterSync(t *testing.T) {
	eng, localRoot, _ := newTestEngine(t, "alice@example.org")
	writeFile(t, localRoot, "a.txt", "A")

	if _, err := eng.Init("initial commit"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	summary, err := eng.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if summary.Uploads != 0 || summary.Downloads != 0 || len(summary.Conflicts) != 0 {
		t.Fatalf("expected a no-op plan after init, got %+v", summary)
	}
}

func TestEngineSyncCommitsSecondSnapshot(t *testing.T) {
	eng, localRoot, _ := newTestEngine(t, "alice@example.org")
	writeFile(t, localRoot, "a.txt", "A")
	if _, err := eng.Init("initial commit"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	writeFile(t, localRoot, "a.txt", "A2")
	result, err := eng.Sync("edit a.txt", merge.ConflictPolicyNormal)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.SnapshotID != "s2" {
		t.Fatalf("expected s2, got %s", result.SnapshotID)
	}

	log, err := eng.Log()
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 snapshots in the log, got %d", len(log))
	}
	if log[1].Previous == nil || *log[1].Previous != "s1" {
		t.Fatalf("expected s2 to chain from s1")
	}
}

func TestEngineBlameFindsLastChangingSnapshot(t *testing.T) {
	eng, localRoot, _ := newTestEngine(t, "alice@example.org")
	writeFile(t, localRoot, "a.txt", "A")
	writeFile(t, localRoot, "b.txt", "B")
	if _, err := eng.Init("initial commit"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	writeFile(t, localRoot, "a.txt", "A2")
	if _, err := eng.Sync("edit a.txt", merge.ConflictPolicyNormal); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	snapshot, err := eng.Blame("a.txt")
	if err != nil {
		t.Fatalf("Blame a.txt: %v", err)
	}
	if snapshot != "s2" {
		t.Fatalf("expected a.txt last touched at s2, got %s", snapshot)
	}

	snapshot, err = eng.Blame("b.txt")
	if err != nil {
		t.Fatalf("Blame b.txt: %v", err)
	}
	if snapshot != "s1" {
		t.Fatalf("expected b.txt last touched at s1, got %s", snapshot)
	}
}

// TestEngineSyncReportsConflict follows the two-client divergence scenario:
// Alice and Bob both start from s1, edit the same file from the same prior
// value, and Alice syncs first. Bob's sync must then fail with a conflict
// (state S5) rather than silently picking a winner.
func TestEngineSyncReportsConflict(t *testing.T) {
	remoteRoot := t.TempDir()
	if _, err := dsg.ControlDirectory(remoteRoot); err != nil {
		t.Fatalf("creating remote control directory: %v", err)
	}

	alice := newTestEngineOnRemote(t, "alice@example.org", remoteRoot)
	writeFile(t, alice.cfg.LocalRoot, "a.txt", "A")
	if _, err := alice.Init("initial commit"); err != nil {
		t.Fatalf("alice Init: %v", err)
	}

	bob := newTestEngineOnRemote(t, "bob@example.org", remoteRoot)
	if _, err := bob.Clone(); err != nil {
		t.Fatalf("bob Clone: %v", err)
	}

	writeFile(t, alice.cfg.LocalRoot, "a.txt", "A_alice")
	if _, err := alice.Sync("alice's edit", merge.ConflictPolicyNormal); err != nil {
		t.Fatalf("alice Sync: %v", err)
	}

	writeFile(t, bob.cfg.LocalRoot, "a.txt", "A_bob")
	_, err := bob.Sync("bob's edit", merge.ConflictPolicyNormal)
	if err == nil {
		t.Fatal("expected a conflict error")
	}
	if _, ok := err.(*txn.ErrConflict); !ok {
		t.Fatalf("expected *txn.ErrConflict, got %T: %v", err, err)
	}
}
