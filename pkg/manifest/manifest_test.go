package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HRDAG/dsg-sub001/pkg/pathspec"
)

// TestDigestRoundTrip verifies that a Digest survives JSON marshaling as a
// bare hex string (spec §6.1), not the "sha256:"-prefixed form.
func TestDigestRoundTrip(t *testing.T) {
	d, err := HashFile(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if got := string(data); len(got) < 2 || got[1] == 's' {
		t.Fatalf("expected bare hex digest, got %s", got)
	}

	var roundTripped Digest
	if err := roundTripped.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	if !roundTripped.Equal(d) {
		t.Fatalf("digest did not round-trip: got %s, want %s", roundTripped.Hex(), d.Hex())
	}
}

// TestEntryEqualFallsBackToMetadata verifies spec §3.5's hash-absent
// fallback: when either side lacks a digest, equality falls back to size
// and modification time.
func TestEntryEqualFallsBackToMetadata(t *testing.T) {
	now := time.Now()
	withHash, _ := NewDigest("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	a := &Entry{Path: "x", Kind: KindFile, Size: 10, ModificationTime: now, Digest: withHash}
	b := &Entry{Path: "x", Kind: KindFile, Size: 10, ModificationTime: now}

	if !a.Equal(b) {
		t.Fatal("expected metadata fallback to treat entries as equal")
	}

	c := &Entry{Path: "x", Kind: KindFile, Size: 11, ModificationTime: now}
	if a.Equal(c) {
		t.Fatal("expected size mismatch to break metadata fallback equality")
	}
}

// TestEntryEnsureValid verifies Entry's structural invariants.
func TestEntryEnsureValid(t *testing.T) {
	tests := []struct {
		description string
		entry       *Entry
		wantErr     bool
	}{
		{"valid file", &Entry{Path: "a", Kind: KindFile}, false},
		{"valid symlink", &Entry{Path: "a", Kind: KindSymlink, Target: "b"}, false},
		{"empty path", &Entry{Path: "", Kind: KindFile}, true},
		{"file with target", &Entry{Path: "a", Kind: KindFile, Target: "b"}, true},
		{"symlink without target", &Entry{Path: "a", Kind: KindSymlink}, true},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			err := test.entry.EnsureValid()
			if (err != nil) != test.wantErr {
				t.Fatalf("EnsureValid() error = %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}

// TestManifestCanonicalHashDeterministic verifies that canonical hashing is
// independent of map iteration order.
func TestManifestCanonicalHashDeterministic(t *testing.T) {
	m1 := New()
	m1.Entries["b"] = &Entry{Path: "b", Kind: KindFile, Size: 1}
	m1.Entries["a"] = &Entry{Path: "a", Kind: KindFile, Size: 2}

	m2 := New()
	m2.Entries["a"] = &Entry{Path: "a", Kind: KindFile, Size: 2}
	m2.Entries["b"] = &Entry{Path: "b", Kind: KindFile, Size: 1}

	h1, err := m1.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	h2, err := m2.CanonicalHash()
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical canonical hashes, got %s and %s", h1, h2)
	}
}

// TestManifestMarshalParseRoundTrip verifies that Parse accepts what Marshal
// produces and rejects a tampered manifest hash (spec §8.1).
func TestManifestMarshalParseRoundTrip(t *testing.T) {
	m := New()
	m.Entries["a.txt"] = &Entry{Path: "a.txt", Kind: KindFile, Size: 3, ModificationTime: time.Now().Truncate(time.Second)}
	m.Metadata.SnapshotID = "s1"
	m.Metadata.CreatedBy = "alice"
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Fatal("expected Marshal output to end with a newline")
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !parsed.Equal(m) {
		t.Fatal("parsed manifest does not equal original")
	}

	tampered := make([]byte, len(data))
	copy(tampered, data)
	hashKey := `"manifest_hash": "`
	hashAt := strings.Index(string(tampered), hashKey)
	if hashAt == -1 {
		t.Fatal("expected Marshal output to contain a manifest hash")
	}
	hashAt += len(hashKey)
	if tampered[hashAt] == 'a' {
		tampered[hashAt] = 'b'
	} else {
		tampered[hashAt] = 'a'
	}
	if _, err := Parse(tampered); err == nil {
		t.Fatal("expected Parse to reject a tampered manifest hash")
	}
}

// TestManifestPathsSorted verifies that Paths returns entries in canonical
// sort order.
func TestManifestPathsSorted(t *testing.T) {
	m := New()
	for _, p := range []string{"z", "a/b", "a", "a.txt"} {
		m.Entries[p] = &Entry{Path: p, Kind: KindFile}
	}
	paths := m.Paths()
	for i := 1; i < len(paths); i++ {
		if paths[i-1] == paths[i] {
			t.Fatalf("duplicate path in output: %s", paths[i])
		}
		if !pathspec.Less(paths[i-1], paths[i]) {
			t.Fatalf("paths not in canonical sort order: %v", paths)
		}
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 paths, got %d", len(paths))
	}
}

// TestScanBuildsManifest verifies that Scan walks a directory tree, hashes
// file content, honors an exclusion predicate, and reports a diagnostic for
// an unreadable symlink target escaping the root.
func TestScanBuildsManifest(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "keep.txt"), "keep")
	mustWriteFile(t, filepath.Join(root, "skip.tmp"), "skip")
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	mustWriteFile(t, filepath.Join(root, "sub", "nested.txt"), "nested")

	if err := os.Symlink("keep.txt", filepath.Join(root, "link")); err != nil {
		t.Skipf("platform does not support symlinks for this test: %v", err)
	}
	if err := os.Symlink("../../outside", filepath.Join(root, "escape")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	exclude := NewExclusionMatcher([]string{"*.tmp"}).Predicate()

	result, err := Scan(ScanOptions{
		Root:          root,
		Exclude:       exclude,
		ComputeHashes: true,
		User:          "alice",
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if entry := result.Manifest.Get("keep.txt"); entry == nil {
		t.Fatal("expected keep.txt to be present")
	} else if entry.Digest.IsEmpty() {
		t.Fatal("expected keep.txt to have a computed digest")
	} else if entry.User != "alice" {
		t.Fatalf("expected user alice, got %s", entry.User)
	}

	if entry := result.Manifest.Get("skip.tmp"); entry != nil {
		t.Fatal("expected skip.tmp to be excluded")
	}

	if entry := result.Manifest.Get("sub/nested.txt"); entry == nil {
		t.Fatal("expected nested file to be present")
	}

	if entry := result.Manifest.Get("link"); entry == nil {
		t.Fatal("expected symlink entry to be present")
	} else if entry.Kind != KindSymlink || entry.Target != "keep.txt" {
		t.Fatalf("unexpected symlink entry: %+v", entry)
	}

	foundEscapeDiagnostic := false
	for _, d := range result.Diagnostics {
		if d.Path == "escape" {
			foundEscapeDiagnostic = true
		}
	}
	if !foundEscapeDiagnostic {
		t.Fatal("expected a diagnostic for the escaping symlink")
	}
}

// TestScanRejectsBrokenSymlink verifies that a symlink whose target does
// not exist is reported as a diagnostic rather than included in the
// manifest (spec §4.1: broken symlinks are illegal alongside absolute and
// escaping ones).
func TestScanRejectsBrokenSymlink(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "keep.txt"), "keep")

	if err := os.Symlink("does-not-exist.txt", filepath.Join(root, "broken")); err != nil {
		t.Skipf("platform does not support symlinks for this test: %v", err)
	}

	result, err := Scan(ScanOptions{Root: root, ComputeHashes: true})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if entry := result.Manifest.Get("broken"); entry != nil {
		t.Fatalf("expected broken symlink to be excluded from the manifest, got %+v", entry)
	}

	foundBrokenDiagnostic := false
	for _, d := range result.Diagnostics {
		if d.Path == "broken" {
			foundBrokenDiagnostic = true
		}
	}
	if !foundBrokenDiagnostic {
		t.Fatal("expected a diagnostic for the broken symlink")
	}
}

// TestScanHashCacheAvoidsRehash verifies that a populated HashCache is
// consulted instead of rehashing unchanged file content.
func TestScanHashCacheAvoidsRehash(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	mustWriteFile(t, path, "content")

	cache := NewHashCache(16)
	first, err := Scan(ScanOptions{Root: root, ComputeHashes: true, HashCache: cache})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	digest := first.Manifest.Get("a.txt").Digest

	second, err := Scan(ScanOptions{Root: root, ComputeHashes: true, HashCache: cache})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !second.Manifest.Get("a.txt").Digest.Equal(digest) {
		t.Fatal("expected cached digest to match freshly computed digest")
	}
}

// TestReverseLookupMap verifies that content duplicated under a different
// path is discoverable via GenerateReverseLookupMap.
func TestReverseLookupMap(t *testing.T) {
	m := New()
	d, err := HashFile(strings.NewReader("shared"))
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	m.Entries["first.txt"] = &Entry{Path: "first.txt", Kind: KindFile, Digest: d}
	m.Entries["second.txt"] = &Entry{Path: "second.txt", Kind: KindFile, Digest: d}

	reverse := GenerateReverseLookupMap(m)
	if reverse.Len() != 1 {
		t.Fatalf("expected 1 distinct digest, got %d", reverse.Len())
	}
	if path, ok := reverse.Lookup(d); !ok || (path != "first.txt" && path != "second.txt") {
		t.Fatalf("unexpected reverse lookup result: %q, %v", path, ok)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
}
