package txn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HRDAG/dsg-sub001/pkg/merge"
)

// fakeLock is the simplest possible Lock: it hands out a fixed token and
// can be told to fail the next Acquire, exercising Execute's lock-contended
// path without any filesystem involvement.
type fakeLock struct {
	failAcquire bool
	acquired    int
	released    int
}

func (l *fakeLock) Acquire(operation string) (string, error) {
	l.acquired++
	if l.failAcquire {
		return "", errors.New("lock held by another process")
	}
	return "token", nil
}

func (l *fakeLock) Release(token string) error {
	l.released++
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, string, string, *fakeLock) {
	t.Helper()
	localRoot := t.TempDir()
	remoteRoot := t.TempDir()
	client := NewLocalClientFilesystem(localRoot)
	remoteFS := NewStagedRemoteFilesystem(remoteRoot)
	transport := NewLocalTransport(t.TempDir())
	lock := &fakeLock{}
	return NewCoordinator(client, remoteFS, transport, lock, nil, nil), localRoot, remoteRoot, lock
}

func TestCoordinatorExecuteUploadsAndCommits(t *testing.T) {
	coordinator, localRoot, remoteRoot, lock := newTestCoordinator(t)

	require.NoError(t, os.WriteFile(filepath.Join(localRoot, "a.txt"), []byte("A"), 0o644), "seeding local file")

	plan := &merge.Plan{Uploads: []string{"a.txt"}, Kind: merge.PlanKindInit}
	err := coordinator.Execute(context.Background(), plan, []byte(`{"manifest":"v1"}`), ID("tx1"), "init")
	require.NoError(t, err)

	remoteContent, err := os.ReadFile(filepath.Join(remoteRoot, "a.txt"))
	require.NoError(t, err, "reading committed remote file")
	require.Equal(t, "A", string(remoteContent))
	require.Equal(t, 1, lock.acquired, "expected exactly one acquire")
	require.Equal(t, 1, lock.released, "expected exactly one release")
}

func TestCoordinatorExecuteRejectsUnexecutablePlan(t *testing.T) {
	coordinator, _, _, lock := newTestCoordinator(t)

	plan := &merge.Plan{Conflicts: []merge.ConflictEntry{{Path: "a.txt"}}}
	err := coordinator.Execute(context.Background(), plan, nil, ID("tx1"), "sync")
	require.Error(t, err, "expected a conflict error")

	conflict, ok := err.(*ErrConflict)
	require.True(t, ok, "expected *ErrConflict, got %T: %v", err, err)
	require.Equal(t, []string{"a.txt"}, conflict.Paths)

	// A rejected plan never reaches lock acquisition.
	require.Equal(t, 0, lock.acquired, "expected no lock acquisition attempt")
}

func TestCoordinatorExecuteFailsFastWhenLockContended(t *testing.T) {
	coordinator, _, _, lock := newTestCoordinator(t)
	lock.failAcquire = true

	plan := &merge.Plan{Kind: merge.PlanKindSync}
	err := coordinator.Execute(context.Background(), plan, []byte(`{}`), ID("tx1"), "sync")
	require.Error(t, err, "expected a lock-contention error")
	require.Equal(t, 0, lock.released, "expected no release after a failed acquire")
}
