package txn

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// CoWRemoteFilesystem is the copy-on-write RemoteFilesystem backend of spec
// §4.4.1, modeling a ZFS-like dataset (snapshot, clone, promote, destroy)
// using plain directories so the protocol can be exercised without a real
// ZFS-backed host. init creates a fresh dataset directly; sync snapshots
// the live dataset aside, clones it, stages writes into the clone, then
// promotes the clone over the live dataset at commit.
//
// Cleanup of the pre-commit snapshot and the orphaned prior dataset is
// best-effort: a promote that fails to remove either leaves them for
// DeferredCleanups to report, per the decision recorded for the archive
// cleanup open question.
type CoWRemoteFilesystem struct {
	root string

	mu       sync.Mutex
	cloneDir map[ID]string
	snapshot map[ID]string
	deferred []string
}

// NewCoWRemoteFilesystem creates a RemoteFilesystem rooted at root, treating
// root as the mountpoint of the simulated dataset.
func NewCoWRemoteFilesystem(root string) *CoWRemoteFilesystem {
	return &CoWRemoteFilesystem{
		root:     root,
		cloneDir: make(map[ID]string),
		snapshot: make(map[ID]string),
	}
}

// DeferredCleanups returns paths this backend failed to remove during past
// commits; callers may retry removal or surface them for operator cleanup.
func (r *CoWRemoteFilesystem) DeferredCleanups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.deferred))
	copy(out, r.deferred)
	return out
}

func (r *CoWRemoteFilesystem) clonePath(tx ID) string {
	return r.root + ".clone-" + string(tx)
}

func (r *CoWRemoteFilesystem) snapshotPath(tx ID) string {
	return r.root + ".snap-" + string(tx)
}

// Begin implements RemoteFilesystem. If root does not yet exist this is an
// init: the clone directory becomes the dataset outright, with no prior
// state to snapshot. Otherwise it is a sync: the live dataset is snapshotted
// aside and a clone of it becomes the working copy for staged writes.
func (r *CoWRemoteFilesystem) Begin(tx ID) error {
	clone := r.clonePath(tx)

	if _, err := os.Stat(r.root); os.IsNotExist(err) {
		return os.MkdirAll(clone, 0o755)
	}

	snap := r.snapshotPath(tx)
	if err := copyTree(r.root, snap); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "snapshotting dataset before clone")
	}
	if err := copyTree(r.root, clone); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "cloning dataset")
	}

	r.mu.Lock()
	r.snapshot[tx] = snap
	r.mu.Unlock()
	return nil
}

func (r *CoWRemoteFilesystem) workingDir(tx ID) string {
	return r.clonePath(tx)
}

// Stage implements RemoteFilesystem.
func (r *CoWRemoteFilesystem) Stage(tx ID, relPath string, content io.Reader) error {
	dest := filepath.Join(r.workingDir(tx), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "creating clone parent directory")
	}
	file, err := os.Create(dest)
	if err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "creating file in clone")
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return errkind.Wrap(errkind.RemoteCommit, err, "writing file in clone")
	}
	return file.Close()
}

// StageDelete implements RemoteFilesystem.
func (r *CoWRemoteFilesystem) StageDelete(tx ID, relPath string) error {
	dest := filepath.Join(r.workingDir(tx), filepath.FromSlash(relPath))
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap(errkind.RemoteCommit, err, "removing file in clone")
	}
	return nil
}

// StageManifest implements RemoteFilesystem.
func (r *CoWRemoteFilesystem) StageManifest(tx ID, manifestData []byte) error {
	return os.WriteFile(filepath.Join(r.workingDir(tx), dsg.CacheManifestName), manifestData, 0o644)
}

// Commit implements RemoteFilesystem: promotes the clone over the live
// dataset by rename, then best-effort removes the pre-commit snapshot. A
// failure to remove the snapshot is deferred rather than failing the
// commit, since the promote itself (the actual point of no return) already
// succeeded.
func (r *CoWRemoteFilesystem) Commit(tx ID) error {
	clone := r.clonePath(tx)

	old := r.root + ".orphan-" + string(tx)
	hadPrior := false
	if _, err := os.Stat(r.root); err == nil {
		if err := os.Rename(r.root, old); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "moving prior dataset aside for promote")
		}
		hadPrior = true
	}

	if err := os.Rename(clone, r.root); err != nil {
		if hadPrior {
			_ = os.Rename(old, r.root)
		}
		return errkind.Wrap(errkind.RemoteCommit, err, "promoting clone over live dataset")
	}

	r.mu.Lock()
	snap := r.snapshot[tx]
	delete(r.snapshot, tx)
	delete(r.cloneDir, tx)
	r.mu.Unlock()

	if hadPrior {
		if err := os.RemoveAll(old); err != nil {
			r.mu.Lock()
			r.deferred = append(r.deferred, old)
			r.mu.Unlock()
		}
	}
	if snap != "" {
		if err := os.RemoveAll(snap); err != nil {
			r.mu.Lock()
			r.deferred = append(r.deferred, snap)
			r.mu.Unlock()
		}
	}
	return nil
}

// Rollback implements RemoteFilesystem: destroys the clone and best-effort
// removes the pre-commit snapshot, if any (a failed removal is deferred);
// the live dataset is untouched.
func (r *CoWRemoteFilesystem) Rollback(tx ID) error {
	if err := os.RemoveAll(r.clonePath(tx)); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "destroying clone during rollback")
	}
	r.mu.Lock()
	snap := r.snapshot[tx]
	delete(r.snapshot, tx)
	delete(r.cloneDir, tx)
	r.mu.Unlock()
	if snap != "" {
		if err := os.RemoveAll(snap); err != nil {
			r.mu.Lock()
			r.deferred = append(r.deferred, snap)
			r.mu.Unlock()
		}
	}
	return nil
}

// Read implements RemoteFilesystem, reading from the live dataset.
func (r *CoWRemoteFilesystem) Read(relPath string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(r.root, filepath.FromSlash(relPath)))
}

// copyTree recursively copies src to dst, standing in for a ZFS snapshot or
// clone operation.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
