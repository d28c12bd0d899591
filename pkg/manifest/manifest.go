package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/pathspec"
)

// Metadata is the envelope accompanying a Manifest (spec §3.2).
type Metadata struct {
	// SnapshotID is this manifest's snapshot identifier ("s1", "s2", ...).
	SnapshotID string `json:"snapshot_id"`
	// Previous is the prior snapshot's identifier, or empty for the first
	// snapshot.
	Previous string `json:"previous,omitempty"`
	// CreatedAt is the commit timestamp.
	CreatedAt time.Time `json:"created_at"`
	// CreatedBy is the user id that produced this manifest.
	CreatedBy string `json:"created_by"`
	// Message is an optional human-readable commit message.
	Message string `json:"message,omitempty"`
	// EntryCount is the number of entries in the manifest.
	EntryCount int `json:"entry_count"`
	// ManifestHash is the hex-encoded SHA-256 of the canonical
	// serialization of Entries, excluding this envelope (spec §3.2).
	ManifestHash string `json:"manifest_hash"`
}

// Manifest is an ordered mapping from normalized relative path to Entry,
// plus a Metadata envelope (spec §3.2). The zero value is an empty,
// unsaved manifest.
type Manifest struct {
	Metadata Metadata
	Entries  map[string]*Entry
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{Entries: make(map[string]*Entry)}
}

// Paths returns the manifest's paths in canonical (code-point, component-
// wise) sort order, matching spec §6.1's "entries sorted by path."
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Entries))
	for path := range m.Entries {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return pathspec.Less(paths[i], paths[j])
	})
	return paths
}

// Get returns the entry at path, or nil if absent.
func (m *Manifest) Get(path string) *Entry {
	if m == nil {
		return nil
	}
	return m.Entries[path]
}

// EnsureValid checks that every entry in the manifest is well-formed and
// that no two entries share a path (guaranteed structurally by the map
// representation) and that every path is valid per pkg/pathspec (spec §3.1,
// §4.1's contract: "A manifest is valid only if every entry's path
// accepts").
func (m *Manifest) EnsureValid() error {
	if m == nil {
		return nil
	}
	for path, entry := range m.Entries {
		if entry == nil {
			return fmt.Errorf("nil entry at path %q", path)
		}
		if entry.Path != path {
			return fmt.Errorf("entry path mismatch: key %q, entry.Path %q", path, entry.Path)
		}
		if err := entry.EnsureValid(); err != nil {
			return fmt.Errorf("invalid entry at %q: %w", path, err)
		}
		result := pathspec.Validate(path)
		if !result.Accepted() {
			return fmt.Errorf("invalid path %q: %s", path, result.Verdict)
		}
	}
	return nil
}

// CanonicalHash computes the hex-encoded SHA-256 hash of the manifest's
// canonical entry serialization (spec §3.2, §6.1): entries sorted by path,
// object keys sorted, no insignificant whitespace. Go's encoding/json
// already sorts map[string]T keys when marshaling, which orders the
// entries by path; each entry's own keys come out sorted because wireEntry
// declares its fields in sorted key order.
func (m *Manifest) CanonicalHash() (string, error) {
	data, err := json.Marshal(m.Entries)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Finalize computes and stores the manifest's entry count and manifest
// hash into its Metadata envelope. It should be called before persisting a
// newly built or newly derived manifest.
func (m *Manifest) Finalize() error {
	hash, err := m.CanonicalHash()
	if err != nil {
		return fmt.Errorf("unable to compute canonical hash: %w", err)
	}
	m.Metadata.ManifestHash = hash
	m.Metadata.EntryCount = len(m.Entries)
	return nil
}

// wireManifest mirrors the top-level JSON shape of spec §6.1.
type wireManifest struct {
	Metadata Metadata          `json:"metadata"`
	Entries  map[string]*Entry `json:"entries"`
}

// MarshalJSON implements json.Marshaler per spec §6.1.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireManifest{Metadata: m.Metadata, Entries: m.Entries})
}

// UnmarshalJSON implements json.Unmarshaler per spec §6.1.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Entries == nil {
		w.Entries = make(map[string]*Entry)
	}
	for path, entry := range w.Entries {
		entry.Path = path
	}
	m.Metadata = w.Metadata
	m.Entries = w.Entries
	return nil
}

// Marshal serializes the manifest with LF line endings and no trailing
// whitespace, as required by spec §6.1 ("JSON, UTF-8, LF line endings").
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return append(data, '\n'), nil
}

// Parse deserializes a manifest previously produced by Marshal, verifying
// that its stored manifest hash matches the canonical hash of its entries
// (spec §8.1: "For every committed snapshot, the manifest hash is the
// canonical hash of its entries").
func Parse(data []byte) (*Manifest, error) {
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("unable to parse manifest: %w", err)
	}
	if m.Metadata.ManifestHash != "" {
		hash, err := m.CanonicalHash()
		if err != nil {
			return nil, err
		}
		if hash != m.Metadata.ManifestHash {
			return nil, fmt.Errorf("manifest hash mismatch: stored %q, computed %q", m.Metadata.ManifestHash, hash)
		}
	}
	return m, nil
}

// DeriveNext builds the next manifest in a commit chain from this one:
// copies entries, bumps the snapshot id, and links previous. The caller is
// responsible for calling Finalize afterward.
func (m *Manifest) DeriveNext(snapshotID, createdBy, message string) *Manifest {
	next := New()
	next.Metadata = Metadata{
		SnapshotID: snapshotID,
		Previous:   m.Metadata.SnapshotID,
		CreatedAt:  m.Metadata.CreatedAt,
		CreatedBy:  createdBy,
		Message:    message,
	}
	for path, entry := range m.Entries {
		next.Entries[path] = entry.Copy()
	}
	return next
}

// Equal performs a deep comparison of two manifests' entries (ignoring
// envelopes), used by callers that need byte-identical content agreement
// (spec §8.1: "the client cache manifest equals the remote manifest
// byte-identically for the new snapshot").
func (m *Manifest) Equal(other *Manifest) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.Entries) != len(other.Entries) {
		return false
	}
	for path, entry := range m.Entries {
		otherEntry, ok := other.Entries[path]
		if !ok || !entry.Equal(otherEntry) {
			return false
		}
	}
	return true
}
