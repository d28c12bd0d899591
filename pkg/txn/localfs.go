package txn

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// pendingSuffixPrefix marks a file staged but not yet committed for a
// transaction, following the teacher's WriteFileAtomic temp-then-rename
// pattern but keyed by transaction id rather than a process-local random
// suffix, since a staged file must survive across process restarts for
// crash recovery (spec §4.4.1's recovery clause).
const pendingSuffixPrefix = ".pending-"

// marker is the on-disk shape of a transaction marker (spec §4.4.1:
// "write a transaction marker containing tx id").
type marker struct {
	TransactionID string   `json:"transaction_id"`
	StagedPaths   []string `json:"staged_paths"`
	DeletedPaths  []string `json:"deleted_paths"`
}

// LocalClientFilesystem is the working-directory ClientFilesystem (spec
// §4.4.1). Staged writes land at "<path>.pending-<tx>" and are renamed into
// place only at commit.
type LocalClientFilesystem struct {
	root string

	mu           sync.Mutex
	stagedPaths  map[string]bool
	deletedPaths map[string]bool
}

// NewLocalClientFilesystem creates a ClientFilesystem rooted at root, the
// repository's working directory.
func NewLocalClientFilesystem(root string) *LocalClientFilesystem {
	return &LocalClientFilesystem{
		root:         root,
		stagedPaths:  make(map[string]bool),
		deletedPaths: make(map[string]bool),
	}
}

func (c *LocalClientFilesystem) abs(relPath string) string {
	return filepath.Join(c.root, filepath.FromSlash(relPath))
}

func (c *LocalClientFilesystem) pendingPath(tx ID, relPath string) string {
	return c.abs(relPath) + pendingSuffixPrefix + string(tx)
}

func (c *LocalClientFilesystem) cachePath() string {
	return dsg.CacheManifestPath(c.root)
}

func (c *LocalClientFilesystem) backupDir() string {
	return dsg.BackupDirectoryPath(c.root)
}

func (c *LocalClientFilesystem) markerPath() string {
	return dsg.TransactionMarkerPath(c.root)
}

func (c *LocalClientFilesystem) backupPath(tx ID) string {
	return filepath.Join(c.backupDir(), "cache-manifest."+string(tx))
}

// Begin implements ClientFilesystem.
func (c *LocalClientFilesystem) Begin(tx ID) error {
	if err := os.MkdirAll(c.backupDir(), 0o700); err != nil {
		return errkind.Wrap(errkind.ClientCommit, err, "creating backup directory")
	}

	if data, err := os.ReadFile(c.cachePath()); err == nil {
		if err := os.WriteFile(c.backupPath(tx), data, 0o600); err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "backing up cache manifest")
		}
	} else if !os.IsNotExist(err) {
		return errkind.Wrap(errkind.ClientCommit, err, "reading cache manifest for backup")
	}

	m := marker{TransactionID: string(tx)}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(c.markerPath(), data, 0o600)
}

// Open implements ClientFilesystem.
func (c *LocalClientFilesystem) Open(relPath string) (io.ReadCloser, error) {
	return os.Open(c.abs(relPath))
}

// Stage implements ClientFilesystem.
func (c *LocalClientFilesystem) Stage(tx ID, relPath string, content io.Reader) error {
	pending := c.pendingPath(tx, relPath)
	if err := os.MkdirAll(filepath.Dir(pending), 0o755); err != nil {
		return errkind.Wrap(errkind.ClientCommit, err, "creating parent directory for staged file")
	}
	file, err := os.Create(pending)
	if err != nil {
		return errkind.Wrap(errkind.ClientCommit, err, "creating staged file")
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(pending)
		return errkind.Wrap(errkind.ClientCommit, err, "writing staged file content")
	}
	if err := file.Close(); err != nil {
		return errkind.Wrap(errkind.ClientCommit, err, "closing staged file")
	}

	c.mu.Lock()
	c.stagedPaths[relPath] = true
	c.mu.Unlock()
	return c.writeMarker(tx)
}

// StageDelete implements ClientFilesystem.
func (c *LocalClientFilesystem) StageDelete(tx ID, relPath string) error {
	c.mu.Lock()
	c.deletedPaths[relPath] = true
	c.mu.Unlock()
	return c.writeMarker(tx)
}

// StageCacheUpdate implements ClientFilesystem. Pure cache refreshes have
// no staged file of their own; they are folded into the new cache manifest
// written at StageManifest, so this is a no-op recorded for symmetry with
// the protocol's explicit step.
func (c *LocalClientFilesystem) StageCacheUpdate(tx ID, relPath string, entry CacheEntry) error {
	return nil
}

// StageManifest implements ClientFilesystem.
func (c *LocalClientFilesystem) StageManifest(tx ID, manifestData []byte) error {
	return os.WriteFile(c.cachePath()+pendingSuffixPrefix+string(tx), manifestData, 0o600)
}

// Commit implements ClientFilesystem.
func (c *LocalClientFilesystem) Commit(tx ID) error {
	c.mu.Lock()
	staged := make([]string, 0, len(c.stagedPaths))
	for path := range c.stagedPaths {
		staged = append(staged, path)
	}
	deleted := make([]string, 0, len(c.deletedPaths))
	for path := range c.deletedPaths {
		deleted = append(deleted, path)
	}
	c.mu.Unlock()

	for _, relPath := range staged {
		if err := os.Rename(c.pendingPath(tx, relPath), c.abs(relPath)); err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "renaming staged file: "+relPath)
		}
	}
	for _, relPath := range deleted {
		if err := os.Remove(c.abs(relPath)); err != nil && !os.IsNotExist(err) {
			return errkind.Wrap(errkind.ClientCommit, err, "removing deleted file: "+relPath)
		}
	}

	if err := os.Rename(c.cachePath()+pendingSuffixPrefix+string(tx), c.cachePath()); err != nil {
		return errkind.Wrap(errkind.ClientCommit, err, "installing new cache manifest")
	}

	return c.cleanup(tx)
}

// Rollback implements ClientFilesystem.
func (c *LocalClientFilesystem) Rollback(tx ID) error {
	c.mu.Lock()
	staged := make([]string, 0, len(c.stagedPaths))
	for path := range c.stagedPaths {
		staged = append(staged, path)
	}
	c.mu.Unlock()

	for _, relPath := range staged {
		if err := os.Remove(c.pendingPath(tx, relPath)); err != nil && !os.IsNotExist(err) {
			return errkind.Wrap(errkind.ClientCommit, err, "removing staged file during rollback: "+relPath)
		}
	}

	os.Remove(c.cachePath() + pendingSuffixPrefix + string(tx))

	if data, err := os.ReadFile(c.backupPath(tx)); err == nil {
		if err := os.WriteFile(c.cachePath(), data, 0o600); err != nil {
			return errkind.Wrap(errkind.ClientCommit, err, "restoring cache manifest from backup")
		}
	}

	return c.cleanup(tx)
}

func (c *LocalClientFilesystem) cleanup(tx ID) error {
	os.Remove(c.backupPath(tx))
	if err := os.Remove(c.markerPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	c.mu.Lock()
	c.stagedPaths = make(map[string]bool)
	c.deletedPaths = make(map[string]bool)
	c.mu.Unlock()
	return nil
}

func (c *LocalClientFilesystem) writeMarker(tx ID) error {
	c.mu.Lock()
	m := marker{TransactionID: string(tx)}
	for path := range c.stagedPaths {
		m.StagedPaths = append(m.StagedPaths, path)
	}
	for path := range c.deletedPaths {
		m.DeletedPaths = append(m.DeletedPaths, path)
	}
	c.mu.Unlock()
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(c.markerPath(), data, 0o600)
}

// Recover implements ClientFilesystem's crash-recovery clause: on startup,
// if a transaction marker exists, either complete the renames (if all
// staged files are present) or roll back (if any are missing).
func (c *LocalClientFilesystem) Recover() (*RecoveryOutcome, error) {
	data, err := os.ReadFile(c.markerPath())
	if os.IsNotExist(err) {
		return &RecoveryOutcome{Found: false}, nil
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.ClientCommit, err, "reading transaction marker")
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errkind.Wrap(errkind.CorruptedManifest, err, "parsing transaction marker")
	}
	tx := ID(m.TransactionID)

	allPresent := true
	for _, relPath := range m.StagedPaths {
		if _, err := os.Stat(c.pendingPath(tx, relPath)); err != nil {
			allPresent = false
			break
		}
	}

	c.mu.Lock()
	for _, relPath := range m.StagedPaths {
		c.stagedPaths[relPath] = true
	}
	for _, relPath := range m.DeletedPaths {
		c.deletedPaths[relPath] = true
	}
	c.mu.Unlock()

	if allPresent {
		if err := c.Commit(tx); err != nil {
			return nil, err
		}
		return &RecoveryOutcome{Found: true, TransactionID: tx, Completed: true}, nil
	}

	if err := c.Rollback(tx); err != nil {
		return nil, err
	}
	return &RecoveryOutcome{Found: true, TransactionID: tx, Completed: false}, nil
}
