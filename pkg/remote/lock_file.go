package remote

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// FileLock implements Lock as a single JSON record at the remote's
// .dsg/sync.lock (spec §4.5.1), generalizing the teacher's
// open-file-then-Flock Locker to a record readable by any client rather
// than just the process holding the descriptor.
type FileLock struct {
	root string
	mu   sync.Mutex
}

// NewFileLock creates a Lock whose record lives under root's control
// directory.
func NewFileLock(root string) *FileLock {
	return &FileLock{root: root}
}

func (l *FileLock) path() string {
	return dsg.LockPath(l.root)
}

func (l *FileLock) readRecord() (Record, bool, error) {
	data, err := os.ReadFile(l.path())
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, false, errkind.Wrap(errkind.CorruptedManifest, err, "parsing lock record")
	}
	return r, true, nil
}

// TryAcquire implements Lock, using O_CREATE|O_EXCL for the non-reclaim
// acquire path, which POSIX and most remote filesystems document as
// atomic (spec §9: "an operation the backend documents as atomic").
func (l *FileLock) TryAcquire(operation string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, found, err := l.readRecord()
	if err != nil {
		return "", err
	}
	if found {
		if isStale(existing) {
			return l.Reclaim(operation, existing.id())
		}
		return "", errkind.New(errkind.LockContended, "lock held by "+existing.HolderUser+"@"+existing.HolderHost)
	}

	record := currentHolder(operation, "")
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	file, err := os.OpenFile(l.path(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return "", errkind.New(errkind.LockContended, "lock acquired concurrently")
		}
		return "", errkind.Wrap(errkind.LockContended, err, "creating lock record")
	}
	_, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		os.Remove(l.path())
		return "", errkind.Wrap(errkind.LockContended, writeErr, "writing lock record")
	}
	if closeErr != nil {
		os.Remove(l.path())
		return "", errkind.Wrap(errkind.LockContended, closeErr, "closing lock record")
	}

	return record.id(), nil
}

// Reclaim implements Lock. It writes a new record over the stale one and
// then performs the confirmation read-after-write recommended by §9:
// re-reading the record and declaring success only if it matches what was
// just written, catching a concurrent reclaimer that also passed the
// initial staleness check.
func (l *FileLock) Reclaim(operation string, staleToken string) (string, error) {
	existing, found, err := l.readRecord()
	if err != nil {
		return "", err
	}
	if !found || existing.id() != staleToken {
		return "", errkind.New(errkind.LockStaleReclaimFailed, "stale holder no longer matches")
	}
	if !isStale(existing) {
		return "", errkind.New(errkind.LockStaleReclaimFailed, "holder is no longer stale")
	}

	record := currentHolder(operation, "")
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(l.path(), data, 0o600); err != nil {
		return "", errkind.Wrap(errkind.LockStaleReclaimFailed, err, "writing reclaimed lock record")
	}

	confirmed, found, err := l.readRecord()
	if err != nil || !found || confirmed.id() != record.id() {
		return "", errkind.New(errkind.LockStaleReclaimFailed, "lost reclamation race to a concurrent caller")
	}

	return record.id(), nil
}

// Release implements Lock, removing the record only if it still matches
// token, so a caller can never release a lock it no longer holds.
func (l *FileLock) Release(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, found, err := l.readRecord()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if existing.id() != token {
		return errkind.New(errkind.LockContended, "refusing to release a lock held by another caller")
	}
	if err := os.Remove(l.path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
