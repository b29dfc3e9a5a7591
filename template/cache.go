package template

import (
	"sync"

	iface "PartInspect/interface"
)

// Loader fetches a template from the backing store.
type Loader func(id string) (*iface.Template, error)

type cacheEntry struct {
	once sync.Once
	tpl  *iface.Template
	err  error
}

// Cache memoizes loaded templates by id with a compute-once
// guarantee: under concurrent first access exactly one caller runs the
// loader, the rest block on that computation's result. There is no
// TTL; entries leave only through Evict (the external template-update
// event) or Put.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	load    Loader
}

func NewCache(load Loader) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		load:    load,
	}
}

func (c *Cache) Get(id string) (*iface.Template, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		e, ok = c.entries[id]
		if !ok {
			e = &cacheEntry{}
			c.entries[id] = e
		}
		c.mu.Unlock()
	}

	e.once.Do(func() {
		e.tpl, e.err = c.load(id)
	})
	if e.err != nil {
		// A failed load is not pinned: drop the entry so the next
		// access retries, but only if no newer entry replaced it.
		c.mu.Lock()
		if c.entries[id] == e {
			delete(c.entries, id)
		}
		c.mu.Unlock()
		return nil, e.err
	}
	return e.tpl, nil
}

// Put installs a template directly, replacing any cached entry. Used
// after an upload so the fresh template is visible without a reload.
func (c *Cache) Put(tpl *iface.Template) {
	e := &cacheEntry{tpl: tpl}
	e.once.Do(func() {})
	c.mu.Lock()
	c.entries[tpl.ID] = e
	c.mu.Unlock()
}

// Evict removes the cached entry for id. The next Get recomputes.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Len reports the number of cached entries, for diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
