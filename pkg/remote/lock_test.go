package remote

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

func newTestFileLock(t *testing.T) (*FileLock, string) {
	t.Helper()
	root := t.TempDir()
	_, err := dsg.ControlDirectory(root)
	require.NoError(t, err, "creating control directory")
	return NewFileLock(root), root
}

func TestFileLockAcquireRelease(t *testing.T) {
	lock, _ := newTestFileLock(t)

	token, err := lock.TryAcquire("sync")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, lock.Release(token))

	token2, err := lock.TryAcquire("sync")
	require.NoError(t, err, "TryAcquire after release")
	require.NoError(t, lock.Release(token2))
}

func TestFileLockContendedFailsFast(t *testing.T) {
	lock, _ := newTestFileLock(t)

	token, err := lock.TryAcquire("sync")
	require.NoError(t, err)
	defer lock.Release(token)

	_, err = lock.TryAcquire("clone")
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errkind.LockContended, kind)
}

func TestFileLockReleaseRefusesWrongToken(t *testing.T) {
	lock, _ := newTestFileLock(t)

	token, err := lock.TryAcquire("sync")
	require.NoError(t, err)
	defer lock.Release(token)

	err = lock.Release("not-the-real-token")
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errkind.LockContended, kind, "refusing wrong token")
}

func TestFileLockReclaimsStaleHolder(t *testing.T) {
	lock, root := newTestFileLock(t)

	stale := Record{
		HolderUser: "someoneelse",
		HolderHost: "a-host-that-does-not-exist.invalid",
		PID:        999999,
		Operation:  "sync",
		AcquiredAt: time.Now().Add(-time.Hour),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err, "marshaling stale record")
	require.NoError(t, os.WriteFile(dsg.LockPath(root), data, 0o600))

	token, err := lock.TryAcquire("sync")
	require.NoError(t, err, "TryAcquire over stale holder")
	require.NoError(t, lock.Release(token))
}

func TestFileLockDoesNotReclaimLiveHolder(t *testing.T) {
	lock, _ := newTestFileLock(t)

	token, err := lock.TryAcquire("sync")
	require.NoError(t, err)
	defer lock.Release(token)

	_, err = lock.TryAcquire("sync")
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errkind.LockContended, kind, "expected a live holder to block reclamation")
}
