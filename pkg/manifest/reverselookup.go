package manifest

import (
	"github.com/zeebo/blake3"
)

// ReverseLookupMap supports fast rename/copy detection during planning: the
// merger can check whether a file scheduled for upload/download already
// exists elsewhere in the opposite manifest under a different path, which
// lets the coordinator stage a fast local copy instead of a full transfer.
// It is keyed by a 128-bit BLAKE3 digest of the entry's tracked SHA-256
// hash (spec §3.1's authoritative content hash) rather than by that hash
// itself; the file content is not read again. Since
// this map only needs to be fast and collision-resistant enough for a
// planning hint, never to serve as the manifest's durable record. This
// mirrors the teacher's core/cache_maps.go ReverseLookupMap, which keyed on
// raw digest bytes of varying width rather than a single canonical hash.
type ReverseLookupMap struct {
	entries map[[16]byte]string
}

// GenerateReverseLookupMap builds a ReverseLookupMap from a manifest,
// keying each file entry by the BLAKE3-128 digest of its tracked SHA-256
// digest's hex string (a digest-of-a-digest, not a second read of file
// content).
// Entries without a computed hash are skipped, since they provide no basis
// for a content-addressed lookup.
func GenerateReverseLookupMap(m *Manifest) *ReverseLookupMap {
	result := &ReverseLookupMap{entries: make(map[[16]byte]string, len(m.Entries))}
	for path, entry := range m.Entries {
		if entry.Kind != KindFile || entry.Digest.IsEmpty() {
			continue
		}
		result.entries[blake3Key(entry.Digest)] = path
	}
	return result
}

// blake3Key derives a 128-bit BLAKE3 key from a content digest.
func blake3Key(d Digest) [16]byte {
	sum := blake3.Sum256([]byte(d.Hex()))
	var key [16]byte
	copy(key[:], sum[:16])
	return key
}

// Lookup returns the path already holding the given content digest, if
// any.
func (r *ReverseLookupMap) Lookup(d Digest) (string, bool) {
	if r == nil || d.IsEmpty() {
		return "", false
	}
	path, ok := r.entries[blake3Key(d)]
	return path, ok
}

// Len returns the number of distinct content digests tracked.
func (r *ReverseLookupMap) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
