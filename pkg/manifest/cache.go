package manifest

import (
	"fmt"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/mutagen-io/extstat"
)

// hashCacheKey identifies a file's on-disk identity well enough to decide
// whether a previously computed digest can be reused instead of rehashing.
// It combines size and modification time (the teacher's own cache schema,
// core/cache.go's Cache_Entry) with the change time from extstat, which
// changes independently of mtime if a file is replaced via rename/link
// tricks that preserve mtime but not inode metadata.
type hashCacheKey struct {
	path       string
	size       int64
	modTime    int64
	changeTime int64
}

// HashCache is an optional, purely advisory cache of previously computed
// file digests, avoiding a full rehash of unchanged files on repeat scans.
// It is never a correctness requirement (spec §4.2 supplement in
// SPEC_FULL.md): when absent, every file is hashed unconditionally.
type HashCache struct {
	cache *lru.Cache
}

// NewHashCache creates a HashCache holding up to maxEntries digests.
func NewHashCache(maxEntries int) *HashCache {
	return &HashCache{cache: lru.New(maxEntries)}
}

// keyFor builds the cache key for path, consulting extended file metadata
// for a change-time signal. If the extended stat call fails (e.g.
// unsupported platform), the cache is simply bypassed for this file.
func (c *HashCache) keyFor(path string, size int64, modTime time.Time) (hashCacheKey, bool) {
	stat, err := extstat.NewFromFileName(path)
	if err != nil {
		return hashCacheKey{}, false
	}
	return hashCacheKey{
		path:       path,
		size:       size,
		modTime:    modTime.UnixNano(),
		changeTime: stat.ChangeTime.UnixNano(),
	}, true
}

// Lookup returns a previously cached digest for path if its size,
// modification time, and change time all match what was cached.
func (c *HashCache) Lookup(path string, size int64, modTime time.Time) (Digest, bool) {
	if c == nil {
		return EmptyDigest, false
	}
	key, ok := c.keyFor(path, size, modTime)
	if !ok {
		return EmptyDigest, false
	}
	value, ok := c.cache.Get(key)
	if !ok {
		return EmptyDigest, false
	}
	digest, ok := value.(Digest)
	return digest, ok
}

// Store records digest as the cached hash for path at the given size and
// modification time.
func (c *HashCache) Store(path string, size int64, modTime time.Time, digest Digest) {
	if c == nil {
		return
	}
	key, ok := c.keyFor(path, size, modTime)
	if !ok {
		return
	}
	c.cache.Add(key, digest)
}

// String implements fmt.Stringer for diagnostics.
func (c *HashCache) String() string {
	if c == nil {
		return "HashCache(nil)"
	}
	return fmt.Sprintf("HashCache(%d entries)", c.cache.Len())
}
