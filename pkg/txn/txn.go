// Package txn implements the transaction coordinator (spec §4.4): the
// begin/stage/commit/rollback protocol composing a ClientFilesystem, a
// RemoteFilesystem, and a Transport into one atomic sync operation.
// Grounded on the teacher's synchronization.controller lifecycle (connect,
// synchronize, disconnect as a strict sequence with a committed point of no
// return) but re-expressed as three explicit collaborator contracts instead
// of one monolithic controller, per spec §4.4.1.
package txn

import (
	"fmt"
	"io"
	"time"
)

// ID identifies a single transaction. Per spec §4.4.3 it is derived from
// the content of the new manifest when the operation produces a snapshot,
// or from a timestamp plus randomness otherwise.
type ID string

// ClientFilesystem is the working-directory collaborator (spec §4.4.1).
// Implementations stage writes to a side path and only rename them into
// place at commit.
type ClientFilesystem interface {
	// Begin backs up the current cache manifest and records tx as the
	// in-progress transaction.
	Begin(tx ID) error
	// Open reads the current, already-committed content of path in the
	// working directory (used to source uploads).
	Open(path string) (io.ReadCloser, error)
	// Stage writes content to a path not yet visible at its final
	// location.
	Stage(tx ID, path string, content io.Reader) error
	// StageDelete marks path for removal at commit.
	StageDelete(tx ID, path string) error
	// StageCacheUpdate records a cache-only metadata change, with no
	// associated content transfer.
	StageCacheUpdate(tx ID, path string, entry CacheEntry) error
	// StageManifest stages the new manifest to be installed at commit.
	StageManifest(tx ID, manifest []byte) error
	// Commit renames all staged files into place, replaces the cache
	// manifest atomically, and clears the backup/marker.
	Commit(tx ID) error
	// Rollback discards all staged files and restores the cache manifest
	// from backup.
	Rollback(tx ID) error
	// Recover inspects on-disk state left by a prior process and either
	// completes or rolls back an interrupted transaction (spec §4.4.1's
	// recovery clause).
	Recover() (*RecoveryOutcome, error)
}

// CacheEntry is the minimal per-path metadata a ClientFilesystem records
// for a cache-only refresh, independent of pkg/manifest.Entry to keep this
// package's collaborator contracts free of a manifest import cycle.
type CacheEntry struct {
	Digest           string
	Size             int64
	ModificationTime time.Time
}

// RecoveryOutcome describes what Recover found and did.
type RecoveryOutcome struct {
	// Found is true if a transaction marker was present.
	Found bool
	// TransactionID is the recovered transaction's id, if Found.
	TransactionID ID
	// Completed is true if recovery finished the transaction's renames;
	// false if it rolled back instead.
	Completed bool
}

// RemoteFilesystem is the remote-side collaborator (spec §4.4.1). Two
// implementations are provided: a staged backend (remote_staged.go) usable
// over any transport, and a copy-on-write backend (remote_cow.go) modeling
// a ZFS-like dataset.
type RemoteFilesystem interface {
	Begin(tx ID) error
	Stage(tx ID, path string, content io.Reader) error
	StageDelete(tx ID, path string) error
	StageManifest(tx ID, manifest []byte) error
	// Commit is the point of no return (spec §4.4.2 step 10): once it
	// returns successfully, the new snapshot is authoritative remotely
	// regardless of what happens to the client afterward.
	Commit(tx ID) error
	Rollback(tx ID) error
	// Read streams the current committed content at path.
	Read(path string) (io.ReadCloser, error)
}

// Transport moves file content between the coordinator and the remote,
// oblivious to which side is logically "remote" (spec §4.4.1: "Transport is
// oblivious to which filesystem is remote; filesystems consume the temp
// handles").
type Transport interface {
	Begin() error
	// TransferToRemote streams content to a temp handle on the remote
	// side and returns a handle RemoteFilesystem.Stage can consume.
	TransferToRemote(path string, content io.Reader) (io.Reader, error)
	// TransferToLocal streams content from the remote side to a temp
	// handle ClientFilesystem.Stage can consume.
	TransferToLocal(path string, content io.Reader) (io.Reader, error)
	End() error
}

// Lock is the distributed lock collaborator (spec §4.5.1). The coordinator
// depends only on this narrow interface rather than importing pkg/remote's
// concrete lock implementations, mirroring Transport's "filesystem is
// oblivious" decoupling.
type Lock interface {
	// Acquire attempts to take the lock for the given operation name,
	// returning a token identifying this holder. It must fail fast rather
	// than queue (spec §4.5.1: "single bounded retry with short back-off;
	// fail fast otherwise").
	Acquire(operation string) (token string, err error)
	// Release gives up the lock identified by token. A release failure is
	// logged by the caller but never treated as fatal.
	Release(token string) error
}

// ErrConflict is returned by Execute when the supplied plan is not
// executable (spec §4.3.4: "empty iff the plan is executable").
type ErrConflict struct {
	Paths []string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("sync plan has %d unresolved conflict(s)", len(e.Paths))
}
