package vfs

import "sync"

// readRangeKey identifies a cached small read by URI and byte range.
type readRangeKey struct {
	uri    string
	offset int64
	length int64
}

// ReadAheadCache is a byte-range cache sitting in front of small reads on
// backends without an OS page cache to rely on. Entries are raw byte
// ranges keyed by (uri, offset, length); the cache bounds itself by total
// bytes held rather than by entry count, evicting in insertion order (a
// Get does not refresh an entry's position).
type ReadAheadCache struct {
	mu        sync.Mutex
	entries   map[readRangeKey][]byte
	order     []readRangeKey
	maxBytes  int64
	usedBytes int64
}

func NewReadAheadCache(maxBytes int64) *ReadAheadCache {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &ReadAheadCache{
		entries:  make(map[readRangeKey][]byte),
		maxBytes: maxBytes,
	}
}

func (c *ReadAheadCache) Get(uri string, offset, length int64) []byte {
	key := readRangeKey{uri, offset, length}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

func (c *ReadAheadCache) Put(uri string, offset, length int64, data []byte) {
	key := readRangeKey{uri, offset, length}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	for c.usedBytes+int64(len(data)) > c.maxBytes && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.usedBytes -= int64(len(c.entries[oldest]))
		delete(c.entries, oldest)
	}
	c.entries[key] = data
	c.order = append(c.order, key)
	c.usedBytes += int64(len(data))
}

// InvalidateURI drops every cached range for uri, used after a write or
// rename changes its contents.
func (c *ReadAheadCache) InvalidateURI(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, k := range c.order {
		if k.uri == uri {
			c.usedBytes -= int64(len(c.entries[k]))
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}

// CachedVFS wraps a VFS, serving small single-range reads from a
// ReadAheadCache and passing everything else through.
type CachedVFS struct {
	VFS
	cache         *ReadAheadCache
	smallReadSize int64
}

// NewCachedVFS wraps backend with a read-ahead cache for reads of up to
// smallReadSize bytes.
func NewCachedVFS(backend VFS, cache *ReadAheadCache, smallReadSize int64) *CachedVFS {
	return &CachedVFS{VFS: backend, cache: cache, smallReadSize: smallReadSize}
}

func (c *CachedVFS) BulkRead(uri string, ranges []ByteRange) ([]byte, error) {
	if len(ranges) == 1 && ranges[0].Length <= c.smallReadSize {
		r := ranges[0]
		if cached := c.cache.Get(uri, r.Offset, r.Length); cached != nil {
			return cached, nil
		}
		data, err := c.VFS.BulkRead(uri, ranges)
		if err != nil {
			return nil, err
		}
		c.cache.Put(uri, r.Offset, r.Length, data)
		return data, nil
	}
	return c.VFS.BulkRead(uri, ranges)
}

func (c *CachedVFS) Rename(src, dst string) error {
	c.cache.InvalidateURI(src)
	c.cache.InvalidateURI(dst)
	return c.VFS.Rename(src, dst)
}

func (c *CachedVFS) Delete(uri string) error {
	c.cache.InvalidateURI(uri)
	return c.VFS.Delete(uri)
}
