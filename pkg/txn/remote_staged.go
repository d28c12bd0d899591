package txn

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// stagingDirPrefix names the per-transaction staging directory used by
// StagedRemoteFilesystem.
const stagingDirPrefix = ".dsg-staging-"

// StagedRemoteFilesystem is the "arbitrary filesystem over any transport"
// RemoteFilesystem backend of spec §4.4.1: writes land in a staging
// directory and commit promotes staging to live via rename plus a manifest
// swap. It is the backend used whenever the remote is reached over SSH or
// HTTP rather than a ZFS-capable local path; see remote_cow.go for the
// copy-on-write alternative.
type StagedRemoteFilesystem struct {
	root string

	mu           sync.Mutex
	stagedPaths  map[string]bool
	deletedPaths map[string]bool
}

// NewStagedRemoteFilesystem creates a RemoteFilesystem rooted at root.
func NewStagedRemoteFilesystem(root string) *StagedRemoteFilesystem {
	return &StagedRemoteFilesystem{
		root:         root,
		stagedPaths:  make(map[string]bool),
		deletedPaths: make(map[string]bool),
	}
}

func (r *StagedRemoteFilesystem) stagingDir(tx ID) string {
	return filepath.Join(r.root, stagingDirPrefix+string(tx))
}

func (r *StagedRemoteFilesystem) stagingPath(tx ID, relPath string) string {
	return filepath.Join(r.stagingDir(tx), filepath.FromSlash(relPath))
}

func (r *StagedRemoteFilesystem) livePath(relPath string) string {
	return filepath.Join(r.root, filepath.FromSlash(relPath))
}

// Begin implements RemoteFilesystem.
func (r *StagedRemoteFilesystem) Begin(tx ID) error {
	return os.MkdirAll(r.stagingDir(tx), 0o755)
}

// Stage implements RemoteFilesystem.
func (r *StagedRemoteFilesystem) Stage(tx ID, relPath string, content io.Reader) error {
	staged := r.stagingPath(tx, relPath)
	if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "creating staging parent directory")
	}
	file, err := os.Create(staged)
	if err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "creating staged remote file")
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(staged)
		return errkind.Wrap(errkind.RemoteCommit, err, "writing staged remote file")
	}
	if err := file.Close(); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "closing staged remote file")
	}
	r.mu.Lock()
	r.stagedPaths[relPath] = true
	r.mu.Unlock()
	return nil
}

// StageDelete implements RemoteFilesystem.
func (r *StagedRemoteFilesystem) StageDelete(tx ID, relPath string) error {
	r.mu.Lock()
	r.deletedPaths[relPath] = true
	r.mu.Unlock()
	return nil
}

// StageManifest implements RemoteFilesystem.
func (r *StagedRemoteFilesystem) StageManifest(tx ID, manifestData []byte) error {
	if err := os.MkdirAll(r.stagingDir(tx), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.stagingDir(tx), dsg.CacheManifestName), manifestData, 0o644)
}

// Commit implements RemoteFilesystem: promotes every staged file into
// place, applies deletions, and swaps in the new manifest, then removes
// the staging directory.
func (r *StagedRemoteFilesystem) Commit(tx ID) error {
	r.mu.Lock()
	staged := make([]string, 0, len(r.stagedPaths))
	for path := range r.stagedPaths {
		staged = append(staged, path)
	}
	deleted := make([]string, 0, len(r.deletedPaths))
	for path := range r.deletedPaths {
		deleted = append(deleted, path)
	}
	r.mu.Unlock()

	for _, relPath := range staged {
		live := r.livePath(relPath)
		if err := os.MkdirAll(filepath.Dir(live), 0o755); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "creating live parent directory")
		}
		if err := os.Rename(r.stagingPath(tx, relPath), live); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "promoting staged file: "+relPath)
		}
	}
	for _, relPath := range deleted {
		if err := os.Remove(r.livePath(relPath)); err != nil && !os.IsNotExist(err) {
			return errkind.Wrap(errkind.RemoteCommit, err, "applying remote deletion: "+relPath)
		}
	}

	manifestStagePath := filepath.Join(r.stagingDir(tx), dsg.CacheManifestName)
	if data, err := os.ReadFile(manifestStagePath); err == nil {
		if err := os.WriteFile(r.livePath(dsg.CacheManifestName), data, 0o644); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "swapping in new remote manifest")
		}
	}

	if err := os.RemoveAll(r.stagingDir(tx)); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "removing staging directory")
	}
	r.reset()
	return nil
}

// Rollback implements RemoteFilesystem.
func (r *StagedRemoteFilesystem) Rollback(tx ID) error {
	if err := os.RemoveAll(r.stagingDir(tx)); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "removing staging directory during rollback")
	}
	r.reset()
	return nil
}

// Read implements RemoteFilesystem.
func (r *StagedRemoteFilesystem) Read(relPath string) (io.ReadCloser, error) {
	return os.Open(r.livePath(relPath))
}

func (r *StagedRemoteFilesystem) reset() {
	r.mu.Lock()
	r.stagedPaths = make(map[string]bool)
	r.deletedPaths = make(map[string]bool)
	r.mu.Unlock()
}
