// Package tablecache memoizes per-table store handles for the life of the
// process.
package tablecache

import "sync"

// Cache maps table names to handles built by a constructor. The constructor
// runs at most once per name while the entry is cached.
type Cache[H any] struct {
	mu      sync.Mutex
	build   func(name string) H
	handles map[string]H
}

// New returns a Cache that builds missing handles with build.
func New[H any](build func(name string) H) *Cache[H] {
	return &Cache[H]{
		build:   build,
		handles: make(map[string]H),
	}
}

// Lookup returns the cached handle for name, building it first if needed.
// Calling Lookup on a Cache without a constructor is a programming error.
func (c *Cache[H]) Lookup(name string) H {
	if c == nil || c.build == nil {
		panic("tablecache: lookup before the store client was initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[name]; ok {
		return h
	}
	h := c.build(name)
	c.handles[name] = h
	return h
}

// Delete drops the cached handle for name and reports whether one existed.
// It does not touch the underlying table.
func (c *Cache[H]) Delete(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handles[name]; !ok {
		return false
	}
	delete(c.handles, name)
	return true
}

// Len returns the number of cached handles.
func (c *Cache[H]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}
