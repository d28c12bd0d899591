package remote

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// ArchiveEntry records where one historical manifest lives and what it
// hashes to, per the archive index's supplemented lookup role (SPEC_FULL.md
// §3 supplement): ".dsg/archive/ needs some way to look up which file
// holds snapshot s17 without re-parsing every archived manifest."
type ArchiveEntry struct {
	SnapshotID string `msgpack:"snapshot_id"`
	FileName   string `msgpack:"file_name"`
	Digest     string `msgpack:"digest"`
}

// ArchiveIndex is the append-only MessagePack-encoded index over
// .dsg/archive/. The engine keeps one in the client's control directory and
// one at the remote root; both are read only by this codebase, never by
// another tool, so it favors a compact binary encoding over the JSON used
// by every other on-disk record in this package.
type ArchiveIndex struct {
	root string
	mu   sync.Mutex
}

// NewArchiveIndex opens the archive index rooted at root's control
// directory.
func NewArchiveIndex(root string) *ArchiveIndex {
	return &ArchiveIndex{root: root}
}

func (a *ArchiveIndex) indexPath() string {
	return filepath.Join(dsg.ArchiveDirectoryPath(a.root), dsg.ArchiveIndexName)
}

func (a *ArchiveIndex) load() ([]ArchiveEntry, error) {
	data, err := os.ReadFile(a.indexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []ArchiveEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, errkind.Wrap(errkind.CorruptedManifest, err, "parsing archive index")
	}
	return entries, nil
}

// Load returns every archive entry recorded so far.
func (a *ArchiveIndex) Load() ([]ArchiveEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load()
}

// Lookup finds the archive entry for snapshotID, if any.
func (a *ArchiveIndex) Lookup(snapshotID string) (ArchiveEntry, bool, error) {
	entries, err := a.Load()
	if err != nil {
		return ArchiveEntry{}, false, err
	}
	for _, entry := range entries {
		if entry.SnapshotID == snapshotID {
			return entry, true, nil
		}
	}
	return ArchiveEntry{}, false, nil
}

// Append records entry as a new archive index record. Storing the full
// manifest body for snapshotID at archiveDir/<entry.FileName> is the
// caller's responsibility; Append only maintains the lookup index.
func (a *ArchiveIndex) Append(entry ArchiveEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.load()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := msgpack.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dsg.ArchiveDirectoryPath(a.root), 0o755); err != nil {
		return errkind.Wrap(errkind.Consistency, err, "creating archive directory")
	}
	return os.WriteFile(a.indexPath(), data, 0o644)
}
