package strategy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL is how long a cached transport preference stays valid.
const DefaultCacheTTL = 1800 * time.Second

// CacheEntry records the last winning transport.
type CacheEntry struct {
	Transport string        `yaml:"transport"`
	Latency   time.Duration `yaml:"latency"`
	Timestamp time.Time     `yaml:"timestamp"`
}

// CacheStore persists transport preferences by key.
type CacheStore interface {
	Load(key string) (CacheEntry, bool)
	Store(key string, entry CacheEntry) error
	Delete(key string) error
}

// MemoryCache keeps entries for the life of the process.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CacheEntry)}
}

// Load returns the entry for key.
func (c *MemoryCache) Load(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Store saves entry under key.
func (c *MemoryCache) Store(key string, entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// FileCache persists entries as YAML so the preference survives restarts.
type FileCache struct {
	path string

	mu      sync.Mutex
	entries map[string]CacheEntry
}

type cacheFile struct {
	Entries map[string]CacheEntry `yaml:"entries"`
}

// OpenFileCache loads the cache at path. A missing file yields an empty
// cache; the file is written on the first Store.
func OpenFileCache(path string) (*FileCache, error) {
	c := &FileCache{path: path, entries: make(map[string]CacheEntry)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transport cache: %w", err)
	}

	var f cacheFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse transport cache %s: %w", path, err)
	}
	for k, v := range f.Entries {
		c.entries[k] = v
	}
	return c, nil
}

// Load returns the entry for key.
func (c *FileCache) Load(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Store saves entry under key and rewrites the file.
func (c *FileCache) Store(key string, entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return c.flushLocked()
}

// Delete removes key and rewrites the file.
func (c *FileCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	return c.flushLocked()
}

func (c *FileCache) flushLocked() error {
	data, err := yaml.Marshal(cacheFile{Entries: c.entries})
	if err != nil {
		return fmt.Errorf("encode transport cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

var (
	_ CacheStore = (*MemoryCache)(nil)
	_ CacheStore = (*FileCache)(nil)
)
