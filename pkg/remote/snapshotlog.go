package remote

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// Snapshot is one entry of the append-only history at sync-messages.json
// (spec §4.5.2/§6.2).
type Snapshot struct {
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by"`
	Message    string    `json:"message"`
	Previous   *string   `json:"previous"`
}

type snapshotLogFile struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// SnapshotLog is the authoritative, append-only history of commits to a
// repository. It is mirrored verbatim between remote and local clients;
// manifests under .dsg/archive/ are the per-snapshot content view this log
// indexes.
type SnapshotLog struct {
	root string
	mu   sync.Mutex
}

// NewSnapshotLog opens the snapshot log rooted at root's control
// directory.
func NewSnapshotLog(root string) *SnapshotLog {
	return &SnapshotLog{root: root}
}

func (s *SnapshotLog) path() string {
	return dsg.SnapshotLogPath(s.root)
}

// Load reads every recorded snapshot in append order.
func (s *SnapshotLog) Load() ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SnapshotLog) load() ([]Snapshot, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f snapshotLogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errkind.Wrap(errkind.CorruptedManifest, err, "parsing snapshot log")
	}
	return f.Snapshots, nil
}

// Latest returns the most recently appended snapshot, or nil if the log is
// empty.
func (s *SnapshotLog) Latest() (*Snapshot, error) {
	snapshots, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	latest := snapshots[len(snapshots)-1]
	return &latest, nil
}

// NextID derives the next snapshot id, monotonically numbered "s1", "s2",
// … (spec §3.3), independent of transaction ids.
func (s *SnapshotLog) NextID() (string, error) {
	snapshots, err := s.Load()
	if err != nil {
		return "", err
	}
	return nextSnapshotID(len(snapshots)), nil
}

func nextSnapshotID(count int) string {
	return "s" + strconv.Itoa(count+1)
}

// Append records a new snapshot as the log's new tail. Invariant (spec
// §6's sequential-pair check): the new entry's Previous must equal the
// current tail's SnapshotID, or be nil if the log was empty.
func (s *SnapshotLog) Append(entry Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots, err := s.load()
	if err != nil {
		return err
	}

	var expectedPrevious *string
	if len(snapshots) > 0 {
		id := snapshots[len(snapshots)-1].SnapshotID
		expectedPrevious = &id
	}
	if (entry.Previous == nil) != (expectedPrevious == nil) ||
		(entry.Previous != nil && expectedPrevious != nil && *entry.Previous != *expectedPrevious) {
		return errkind.New(errkind.Consistency, "snapshot append does not chain from the current tail")
	}

	snapshots = append(snapshots, entry)
	data, err := json.MarshalIndent(snapshotLogFile{Snapshots: snapshots}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(), data, 0o644)
}
