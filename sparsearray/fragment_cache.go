package sparsearray

import "container/list"

// FragmentCache is an LRU cache of open FragmentMetadata keyed by
// fragment name, bounded by an entry count rather than a byte budget —
// fragment metadata is small and cheap compared to tile data, which the
// separate BufferCache (buffer_cache.go) governs by bytes. Grounded on
// pmtiles/loop.go's container/list based LRU.
type FragmentCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type fragmentCacheEntry struct {
	name string
	frag *Fragment
}

// NewFragmentCache creates a cache holding up to capacity fragments.
func NewFragmentCache(capacity int) *FragmentCache {
	return &FragmentCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached fragment for name, promoting it to
// most-recently-used, or ok=false on a miss.
func (c *FragmentCache) Get(name string) (frag *Fragment, ok bool) {
	el, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*fragmentCacheEntry).frag, true
}

// Put inserts or refreshes frag under name, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *FragmentCache) Put(name string, frag *Fragment) {
	if el, ok := c.entries[name]; ok {
		el.Value.(*fragmentCacheEntry).frag = frag
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&fragmentCacheEntry{name: name, frag: frag})
	c.entries[name] = el
	if c.capacity > 0 && c.order.Len() > c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.entries, back.Value.(*fragmentCacheEntry).name)
		}
	}
}

// Len returns the number of cached fragments.
func (c *FragmentCache) Len() int { return c.order.Len() }
