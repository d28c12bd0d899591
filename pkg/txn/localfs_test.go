package txn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
)

func TestLocalClientFilesystemStageAndCommit(t *testing.T) {
	root := t.TempDir()
	client := NewLocalClientFilesystem(root)
	tx := ID("tx1")

	if err := client.Begin(tx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := client.Stage(tx, "a.txt", strings.NewReader("A")); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := client.StageManifest(tx, []byte(`{"manifest":"v1"}`)); err != nil {
		t.Fatalf("StageManifest: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected staged file not yet visible at its final path, stat err=%v", err)
	}

	if err := client.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("reading committed file: %v", err)
	}
	if string(content) != "A" {
		t.Fatalf("expected A, got %q", content)
	}
	manifest, err := os.ReadFile(dsg.CacheManifestPath(root))
	if err != nil {
		t.Fatalf("reading installed cache manifest: %v", err)
	}
	if string(manifest) != `{"manifest":"v1"}` {
		t.Fatalf("unexpected cache manifest content: %q", manifest)
	}
	if _, err := os.Stat(client.markerPath()); !os.IsNotExist(err) {
		t.Fatalf("expected transaction marker cleared after commit")
	}
}

func TestLocalClientFilesystemRollbackRestoresCacheManifest(t *testing.T) {
	root := t.TempDir()
	client := NewLocalClientFilesystem(root)

	if err := os.MkdirAll(filepath.Dir(dsg.CacheManifestPath(root)), 0o700); err != nil {
		t.Fatalf("mkdir control dir: %v", err)
	}
	if err := os.WriteFile(dsg.CacheManifestPath(root), []byte(`{"manifest":"v0"}`), 0o600); err != nil {
		t.Fatalf("seeding prior cache manifest: %v", err)
	}

	tx := ID("tx1")
	if err := client.Begin(tx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := client.Stage(tx, "a.txt", strings.NewReader("A")); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := client.StageManifest(tx, []byte(`{"manifest":"v1"}`)); err != nil {
		t.Fatalf("StageManifest: %v", err)
	}

	if err := client.Rollback(tx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected staged file discarded by rollback")
	}
	manifest, err := os.ReadFile(dsg.CacheManifestPath(root))
	if err != nil {
		t.Fatalf("reading restored cache manifest: %v", err)
	}
	if string(manifest) != `{"manifest":"v0"}` {
		t.Fatalf("expected restored manifest v0, got %q", manifest)
	}
}

func TestLocalClientFilesystemRecoverCompletesWhenAllStagedFilesPresent(t *testing.T) {
	root := t.TempDir()
	client := NewLocalClientFilesystem(root)
	tx := ID("tx1")

	if err := client.Begin(tx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := client.Stage(tx, "a.txt", strings.NewReader("A")); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := client.StageManifest(tx, []byte(`{"manifest":"v1"}`)); err != nil {
		t.Fatalf("StageManifest: %v", err)
	}

	// Simulate a crash right after staging by rebuilding the collaborator
	// from disk state alone, with no in-memory staged/deleted maps.
	recovered := NewLocalClientFilesystem(root)
	outcome, err := recovered.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !outcome.Found || !outcome.Completed || outcome.TransactionID != tx {
		t.Fatalf("unexpected recovery outcome: %+v", outcome)
	}

	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("reading recovered file: %v", err)
	}
	if string(content) != "A" {
		t.Fatalf("expected A, got %q", content)
	}
}

func TestLocalClientFilesystemRecoverRollsBackWhenStagedFileMissing(t *testing.T) {
	root := t.TempDir()
	client := NewLocalClientFilesystem(root)
	tx := ID("tx1")

	if err := os.MkdirAll(filepath.Dir(dsg.CacheManifestPath(root)), 0o700); err != nil {
		t.Fatalf("mkdir control dir: %v", err)
	}
	if err := os.WriteFile(dsg.CacheManifestPath(root), []byte(`{"manifest":"v0"}`), 0o600); err != nil {
		t.Fatalf("seeding prior cache manifest: %v", err)
	}

	if err := client.Begin(tx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := client.Stage(tx, "a.txt", strings.NewReader("A")); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	// Drop the staged file before recovery to simulate a crash mid-write.
	if err := os.Remove(client.pendingPath(tx, "a.txt")); err != nil {
		t.Fatalf("removing staged file: %v", err)
	}

	recovered := NewLocalClientFilesystem(root)
	outcome, err := recovered.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !outcome.Found || outcome.Completed {
		t.Fatalf("expected an incomplete recovery (rollback), got %+v", outcome)
	}

	manifest, err := os.ReadFile(dsg.CacheManifestPath(root))
	if err != nil {
		t.Fatalf("reading cache manifest after rollback recovery: %v", err)
	}
	if string(manifest) != `{"manifest":"v0"}` {
		t.Fatalf("expected cache manifest restored to v0, got %q", manifest)
	}
}
