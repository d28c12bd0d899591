package remote

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/dsg"
	"github.com/HRDAG/dsg-sub001/pkg/errkind"
)

// Tag is one named reference to a snapshot id (spec §4.5.3/§6.3).
type Tag struct {
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
	Message    string    `json:"message"`
}

type tagTableFile struct {
	Tags map[string]Tag `json:"tags"`
}

// TagTable maps version strings to snapshot ids, stored at
// tag-messages.json. Tag creation is idempotent. Tags are held in a map
// keyed by name and written in sorted name order; the order in which tags
// were created is not kept.
type TagTable struct {
	root string
	mu   sync.Mutex
}

// NewTagTable opens the tag table rooted at root's control directory.
func NewTagTable(root string) *TagTable {
	return &TagTable{root: root}
}

func (t *TagTable) path() string {
	return dsg.TagTablePath(t.root)
}

func (t *TagTable) load() (map[string]Tag, error) {
	data, err := os.ReadFile(t.path())
	if os.IsNotExist(err) {
		return make(map[string]Tag), nil
	}
	if err != nil {
		return nil, err
	}
	var f tagTableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errkind.Wrap(errkind.CorruptedManifest, err, "parsing tag table")
	}
	if f.Tags == nil {
		f.Tags = make(map[string]Tag)
	}
	return f.Tags, nil
}

// Load returns every tag currently recorded.
func (t *TagTable) Load() (map[string]Tag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// Get returns the tag named name, if present.
func (t *TagTable) Get(name string) (Tag, bool, error) {
	tags, err := t.Load()
	if err != nil {
		return Tag{}, false, err
	}
	tag, ok := tags[name]
	return tag, ok, nil
}

// Set records or replaces the tag named name, pointing at snapshotID.
// Idempotent: setting the same name to the same snapshot id twice leaves
// the table unchanged in content (only CreatedAt/Message may differ on a
// deliberate re-tag).
func (t *TagTable) Set(name string, tag Tag) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tags, err := t.load()
	if err != nil {
		return err
	}
	tags[name] = tag

	data, err := json.MarshalIndent(tagTableFile{Tags: tags}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.path(), data, 0o644)
}
