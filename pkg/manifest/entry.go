// Package manifest implements the scanner and manifest builder (spec §4.2)
// together with the data model (spec §3): Entry, Manifest, and Snapshot
// metadata. Unlike the teacher's synchronization/core package, which models
// a hierarchy of nested directory entries, this package models a flat
// path-to-Entry map, since spec §3.2 specifies "an ordered mapping from
// normalized relative path to Entry" rather than a directory tree.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the variant of a tracked entry (spec §3.1). Directories
// are not tracked; they are implied by file paths.
type Kind uint8

const (
	// KindFile indicates a regular file entry.
	KindFile Kind = iota
	// KindSymlink indicates a symbolic link entry.
	KindSymlink
)

// String returns the wire representation of the kind (spec §6.1: "type":
// "file" or "link").
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSymlink:
		return "link"
	default:
		return "unknown"
	}
}

// Entry is a tracked path's metadata (spec §3.1).
type Entry struct {
	// Path is the entry's normalized, root-relative, forward-slash path.
	Path string
	// Kind identifies the entry variant.
	Kind Kind

	// Digest is the content hash, present only for file entries (and only
	// once computed; spec allows deferred hashing).
	Digest Digest
	// Size is the byte length, present only for file entries.
	Size int64
	// ModificationTime is the last-modified timestamp, present only for
	// file entries.
	ModificationTime time.Time
	// User is the user who last modified the entry, present only for file
	// entries.
	User string

	// Target is the symbolic link target, present only for symlink
	// entries. It is stored verbatim, never dereferenced.
	Target string
}

// wireEntry mirrors the JSON shape of spec §6.1. Its fields are declared in
// sorted key order so that the marshaled object's keys come out sorted.
type wireEntry struct {
	Hash   Digest `json:"hash,omitempty"`
	MTime  string `json:"mtime,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Target string `json:"target,omitempty"`
	Type   string `json:"type"`
	User   string `json:"user,omitempty"`
}

// MarshalJSON implements json.Marshaler per spec §6.1.
func (e *Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{Type: e.Kind.String()}
	switch e.Kind {
	case KindFile:
		w.Hash = e.Digest
		w.Size = e.Size
		w.MTime = e.ModificationTime.Format(time.RFC3339)
		w.User = e.User
	case KindSymlink:
		w.Target = e.Target
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler per spec §6.1.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "file":
		e.Kind = KindFile
		e.Digest = w.Hash
		e.Size = w.Size
		e.User = w.User
		if w.MTime != "" {
			t, err := time.Parse(time.RFC3339, w.MTime)
			if err != nil {
				return fmt.Errorf("invalid mtime: %w", err)
			}
			e.ModificationTime = t
		}
	case "link":
		e.Kind = KindSymlink
		e.Target = w.Target
	default:
		return fmt.Errorf("unknown entry type: %q", w.Type)
	}
	return nil
}

// EnsureValid checks Entry's invariants (spec §3.1).
func (e *Entry) EnsureValid() error {
	if e == nil {
		return errors.New("nil entry")
	}
	if e.Path == "" {
		return errors.New("empty entry path")
	}
	switch e.Kind {
	case KindFile:
		if e.Target != "" {
			return errors.New("file entry has non-empty symlink target")
		}
	case KindSymlink:
		if e.Target == "" {
			return errors.New("symlink entry with empty target")
		}
		if e.Digest != EmptyDigest {
			return errors.New("symlink entry has non-empty digest")
		}
	default:
		return errors.New("unknown entry kind")
	}
	return nil
}

// Equal determines whether two entries represent the same content,
// implementing the fallback rule of spec §3.5: "When a hash is absent on
// one side, equality falls back to metadata (path, size, mtime, kind)."
func (e *Entry) Equal(other *Entry) bool {
	if e == other {
		return true
	}
	if e == nil || other == nil {
		return false
	}
	if e.Path != other.Path || e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case KindSymlink:
		return e.Target == other.Target
	case KindFile:
		if !e.Digest.IsEmpty() && !other.Digest.IsEmpty() {
			return e.Digest.Equal(other.Digest)
		}
		// Fallback to metadata comparison when either side lacks a hash.
		return e.Size == other.Size &&
			e.ModificationTime.Equal(other.ModificationTime)
	default:
		return false
	}
}

// Copy returns a shallow copy of the entry. Entries are otherwise treated
// as immutable values (spec §9: "Manifests are immutable values").
func (e *Entry) Copy() *Entry {
	if e == nil {
		return nil
	}
	copied := *e
	return &copied
}

// canonicalBytes returns the deterministic byte representation of the
// entry used when computing a manifest's canonical hash (spec §6.1:
// "Canonical serialization for hashing: entries sorted by path, object
// keys sorted, no insignificant whitespace"). It reuses the wire JSON
// encoding, whose field order is fixed by the struct definition; wireEntry
// declares its fields in sorted key order, so no extra sorting step is
// needed (there is only ever one flat object per entry).
func (e *Entry) canonicalBytes() ([]byte, error) {
	return json.Marshal(e)
}
