package sparsearray

import "container/list"

// BufferCache is a byte-budgeted LRU cache of decompressed tiles, the
// seam between the Loader and storage (spec.md §4.6, "Buffer Cache").
// Unlike FragmentCache (bounded by entry count), this cache tracks
// total decompressed bytes so a handful of large tiles can't starve
// the budget the way a naive entry-count cache would — the same
// byte-accounted eviction pmtiles/loop.go's Loop.Start does for its
// in-memory tile cache.
type BufferCache struct {
	maxBytes   int64
	usedBytes  int64
	entries    map[string]*list.Element
	order      *list.List
}

type bufferCacheEntry struct {
	key  string
	data []byte
}

// NewBufferCache creates a cache holding up to maxBytes of decompressed
// tile data.
func NewBufferCache(maxBytes int64) *BufferCache {
	return &BufferCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached bytes for key, promoting the entry to
// most-recently-used.
func (c *BufferCache) Get(key string) ([]byte, bool) {
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*bufferCacheEntry).data, true
}

// Put inserts data under key, evicting least-recently-used entries
// until the total fits within maxBytes. A single entry larger than
// maxBytes is still cached (nothing to evict it against) so a one-off
// oversized tile doesn't thrash an otherwise well-sized cache.
func (c *BufferCache) Put(key string, data []byte) {
	if el, ok := c.entries[key]; ok {
		c.usedBytes -= int64(len(el.Value.(*bufferCacheEntry).data))
		el.Value.(*bufferCacheEntry).data = data
		c.usedBytes += int64(len(data))
		c.order.MoveToFront(el)
		c.evict()
		return
	}
	el := c.order.PushFront(&bufferCacheEntry{key: key, data: data})
	c.entries[key] = el
	c.usedBytes += int64(len(data))
	c.evict()
}

func (c *BufferCache) evict() {
	for c.usedBytes > c.maxBytes && c.order.Len() > 1 {
		back := c.order.Back()
		entry := back.Value.(*bufferCacheEntry)
		c.usedBytes -= int64(len(entry.data))
		c.order.Remove(back)
		delete(c.entries, entry.key)
	}
}

// UsedBytes returns the cache's current footprint.
func (c *BufferCache) UsedBytes() int64 { return c.usedBytes }
