// File: internal/volume/cache.go
package volume

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// volumeCaches holds the read-side caches of a mounted volume: directory
// listings and stat results keyed by normalized path, plus the free-space
// figure. Any mutation drops everything; FAT volumes have no change
// journal to invalidate selectively against.
type volumeCaches struct {
	mu       sync.RWMutex
	listings map[string][]types.FileEntry
	stats    map[string]types.FileEntry
	free     uint64
	hasFree  bool

	// flight collapses concurrent listing loads of the same directory
	// into one device walk.
	flight singleflight.Group
}

func newVolumeCaches() *volumeCaches {
	return &volumeCaches{
		listings: make(map[string][]types.FileEntry),
		stats:    make(map[string]types.FileEntry),
	}
}

func (c *volumeCaches) listing(path string) ([]types.FileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.listings[path]
	return entries, ok
}

// loadListing returns the cached listing for path, or runs load once for
// all concurrent callers and caches its result.
func (c *volumeCaches) loadListing(path string, load func() ([]types.FileEntry, error)) ([]types.FileEntry, error) {
	if entries, ok := c.listing(path); ok {
		return entries, nil
	}

	result, err, _ := c.flight.Do(path, func() (interface{}, error) {
		if entries, ok := c.listing(path); ok {
			return entries, nil
		}
		entries, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.listings[path] = entries
		for _, e := range entries {
			c.stats[e.Path] = e
		}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.FileEntry), nil
}

func (c *volumeCaches) stat(path string) (types.FileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.stats[path]
	return entry, ok
}

func (c *volumeCaches) storeStat(entry types.FileEntry) {
	c.mu.Lock()
	c.stats[entry.Path] = entry
	c.mu.Unlock()
}

func (c *volumeCaches) freeSpace() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.free, c.hasFree
}

func (c *volumeCaches) storeFreeSpace(free uint64) {
	c.mu.Lock()
	c.free = free
	c.hasFree = true
	c.mu.Unlock()
}

// invalidate drops every cached value. Called after each mutation.
func (c *volumeCaches) invalidate() {
	c.mu.Lock()
	c.listings = make(map[string][]types.FileEntry)
	c.stats = make(map[string]types.FileEntry)
	c.hasFree = false
	c.mu.Unlock()
}
