package cpe

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kvesta/vulnmap/internal/storage"

	"k8s.io/apimachinery/pkg/util/json"
)

type Entry struct {
	CPE   string `json:"cpe"`
	Valid bool   `json:"valid"`
}

// Cache maps an item label to its candidate identifiers. Entries are merged,
// never replaced, and an identifier marked invalid stays invalid.
type Cache struct {
	mu      sync.RWMutex
	path    string
	entries map[string][]Entry
	dirty   bool
}

func NewCache(path string) *Cache {
	return &Cache{
		path:    path,
		entries: map[string][]Entry{},
	}
}

// Load reads the cache file. A missing file yields an empty cache.
func Load(path string) (*Cache, error) {
	c := NewCache(path)

	data, err := storage.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return c, nil
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("corrupt identifier cache %s: %w", path, err)
	}
	if c.entries == nil {
		c.entries = map[string][]Entry{}
	}

	return c, nil
}

// Lookup returns the valid identifiers for name in insertion order.
func (c *Cache) Lookup(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := []string{}
	for _, e := range c.entries[name] {
		if e.Valid {
			ids = append(ids, e.CPE)
		}
	}

	return ids
}

// Has reports whether any entry exists for name, valid or not.
func (c *Cache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[name]
	return ok
}

// Store merges ids into the entry for name. Known identifiers keep their flag.
func (c *Cache) Store(name string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entries[name]
	for _, id := range ids {
		if id == "" || indexOf(entries, id) > -1 {
			continue
		}
		entries = append(entries, Entry{CPE: id, Valid: true})
	}

	if entries == nil {
		entries = []Entry{}
	}
	c.entries[name] = entries
	c.dirty = true
}

// MarkInvalid records id as a permanent negative for name.
func (c *Cache) MarkInvalid(name, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entries[name]
	if i := indexOf(entries, id); i > -1 {
		if !entries[i].Valid {
			return
		}
		entries[i].Valid = false
	} else {
		entries = append(entries, Entry{CPE: id, Valid: false})
	}

	c.entries[name] = entries
	c.dirty = true
}

// Invalid reports whether id was marked invalid under any name.
func (c *Cache) Invalid(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, entries := range c.entries {
		if i := indexOf(entries, id); i > -1 && !entries[i].Valid {
			return true
		}
	}
	return false
}

// Owners lists the names carrying id, sorted.
func (c *Cache) Owners(id string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name, entries := range c.entries {
		if indexOf(entries, id) > -1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names
}

func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string][]Entry{}
	c.dirty = true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Save writes the cache atomically when it changed since the last save.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty && storage.Exists(c.path) {
		return nil
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		return err
	}

	if err := storage.WriteFile(c.path, data, 0644); err != nil {
		return err
	}

	c.dirty = false
	return nil
}

func indexOf(entries []Entry, id string) int {
	for i, e := range entries {
		if e.CPE == id {
			return i
		}
	}
	return -1
}
