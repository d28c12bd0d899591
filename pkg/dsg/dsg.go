// Package dsg holds process-wide identifiers and the well-known layout of
// the per-repository control directory.
package dsg

import (
	"os"
	"path/filepath"
)

const (
	// Version is the current release version of the core sync engine.
	Version = "0.1.0"

	// ControlDirectoryName is the name of the hidden control directory that
	// sits at the root of every working directory.
	ControlDirectoryName = ".dsg"

	// CacheManifestName is the file name of the cache manifest within the
	// control directory.
	CacheManifestName = "last-sync.json"

	// SnapshotLogName is the file name of the append-only snapshot log
	// mirrored from the remote.
	SnapshotLogName = "sync-messages.json"

	// TagTableName is the file name of the tag table mirrored from the
	// remote.
	TagTableName = "tag-messages.json"

	// LockName is the file name of the distributed lock record on the
	// remote.
	LockName = "sync.lock"

	// ArchiveDirectoryName is the name of the subdirectory holding prior
	// manifests.
	ArchiveDirectoryName = "archive"

	// ArchiveIndexName is the file name of the archive index.
	ArchiveIndexName = "index"

	// BackupDirectoryName is the name of the subdirectory used by
	// ClientFilesystem to stash the cache manifest during a transaction.
	BackupDirectoryName = "backup"

	// TransactionMarkerName is the file name of the transaction-in-progress
	// marker written at the start of a client-side transaction.
	TransactionMarkerName = "transaction-in-progress"
)

// DebugEnabled is a package-level debug toggle (not shared mutable
// synchronization state) intended to be set once at process startup.
// pkg/logging does not read it: Logger.Debug* output is gated by each
// logger's Level alone.
var DebugEnabled bool

// ControlDirectory returns the path to the control directory beneath root,
// creating it (and any requested subpath) if necessary.
func ControlDirectory(root string, subpath ...string) (string, error) {
	components := make([]string, 0, 2+len(subpath))
	components = append(components, root, ControlDirectoryName)
	components = append(components, subpath...)
	result := filepath.Join(components...)
	if err := os.MkdirAll(result, 0700); err != nil {
		return "", err
	}
	return result, nil
}

// CacheManifestPath returns the path to the cache manifest for a working
// directory rooted at root.
func CacheManifestPath(root string) string {
	return filepath.Join(root, ControlDirectoryName, CacheManifestName)
}

// SnapshotLogPath returns the path to the snapshot log for a working
// directory or remote rooted at root.
func SnapshotLogPath(root string) string {
	return filepath.Join(root, ControlDirectoryName, SnapshotLogName)
}

// TagTablePath returns the path to the tag table for a working directory or
// remote rooted at root.
func TagTablePath(root string) string {
	return filepath.Join(root, ControlDirectoryName, TagTableName)
}

// LockPath returns the path to the distributed lock record for a remote
// rooted at root.
func LockPath(root string) string {
	return filepath.Join(root, ControlDirectoryName, LockName)
}

// ArchiveDirectoryPath returns the path to the archive directory for a
// working directory or remote rooted at root.
func ArchiveDirectoryPath(root string) string {
	return filepath.Join(root, ControlDirectoryName, ArchiveDirectoryName)
}

// BackupDirectoryPath returns the path to the transaction backup directory
// for a working directory rooted at root.
func BackupDirectoryPath(root string) string {
	return filepath.Join(root, ControlDirectoryName, BackupDirectoryName)
}

// TransactionMarkerPath returns the path to the transaction-in-progress
// marker for a working directory rooted at root.
func TransactionMarkerPath(root string) string {
	return filepath.Join(root, ControlDirectoryName, BackupDirectoryName, TransactionMarkerName)
}
