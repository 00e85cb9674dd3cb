package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/kagenomi/tvm/internal/backend"
)

// Cache holds the entire InstalledState in memory and flushes to disk
// between installer waves. Adapted from tomei's
// internal/installer/executor.StateCache, generalized from the
// resource-kind cachedStore pattern to a flat Identifier->ToolRecord
// map, and extended with Reset so callers can mark a fresh resolve
// boundary per §5 ("process-wide cache with an explicit reset point
// between install and post-install resolve").
type Cache struct {
	mu    sync.Mutex
	store *Store[InstalledState]
	cache *InstalledState
	dirty bool
}

// NewCache creates a new Cache backed by the given store.
func NewCache(store *Store[InstalledState]) *Cache {
	return &Cache{store: store}
}

// Init sets the in-memory cache. Call after loading state from disk.
func (c *Cache) Init(st *InstalledState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st == nil {
		st = NewInstalledState()
	}
	c.cache = st
	c.dirty = false
}

// Flush writes the cache to disk if any changes were made since the
// last flush or reset.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || c.cache == nil {
		return nil
	}
	if err := c.store.Save(c.cache); err != nil {
		return fmt.Errorf("failed to flush state cache: %w", err)
	}
	c.dirty = false
	return nil
}

// Reset clears the dirty flag without writing, marking the boundary
// between an install pass and the best-effort post-install resolve
// that follows it.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
}

// Snapshot returns the current cache pointer. Safe to call only
// between waves, not during parallel execution.
func (c *Cache) Snapshot() *InstalledState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// Record marks a tool identifier as installed at the given canonical
// version and path, and marks the cache dirty so the next Flush
// persists it.
func (c *Cache) Record(id backend.Identifier, canonical, installPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		c.cache = NewInstalledState()
	}
	if c.cache.Tools == nil {
		c.cache.Tools = make(map[string]*ToolRecord)
	}
	c.cache.Tools[id.Full] = &ToolRecord{
		Version:     canonical,
		InstallPath: installPath,
		InstalledAt: time.Now(),
	}
	c.dirty = true
}

// Lookup returns the recorded ToolRecord for an identifier, if any.
func (c *Cache) Lookup(id backend.Identifier) (*ToolRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil || c.cache.Tools == nil {
		return nil, false
	}
	rec, ok := c.cache.Tools[id.Full]
	return rec, ok
}
