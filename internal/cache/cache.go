package cache

import (
	"sync"
	"time"
)

type entry struct {
	data      []byte
	updatedAt time.Time
}

// Cache holds the latest serialized output file per source in memory.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Set stores a copy of the file bytes for source.
func (c *Cache) Set(source string, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.mu.Lock()
	c.entries[source] = entry{data: buf, updatedAt: time.Now()}
	c.mu.Unlock()
}

// Get returns a copy of the cached bytes for source, or nil if empty.
func (c *Cache) Get(source string) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[source]
	if !ok {
		return nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}

// UpdatedAt returns the last time source was cached.
func (c *Cache) UpdatedAt(source string) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[source].updatedAt
}
