// Package cache keeps parsed files between runs so unchanged files are not
// reparsed.
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/panbanda/strata/pkg/uast"
)

// Version is bumped whenever the shape of a cached FileContext changes, so
// entries written by an older front-end are never served.
const Version = "1"

// Store persists parsed files by key. Implementations must be safe for
// concurrent use. Cached FileContexts are shared and must not be mutated.
type Store interface {
	Get(key string) (*uast.FileContext, bool)
	Put(key string, fc *uast.FileContext)
	Remove(key string)
	Len() int
}

// MemoryStore is an in-memory LRU Store.
type MemoryStore struct {
	lru *lru.Cache[string, *uast.FileContext]
}

// NewMemoryStore creates a store holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := lru.New[string, *uast.FileContext](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{lru: c}, nil
}

func (s *MemoryStore) Get(key string) (*uast.FileContext, bool) { return s.lru.Get(key) }
func (s *MemoryStore) Put(key string, fc *uast.FileContext)     { s.lru.Add(key, fc) }
func (s *MemoryStore) Remove(key string)                        { s.lru.Remove(key) }
func (s *MemoryStore) Len() int                                 { return s.lru.Len() }

// Cache looks parsed files up by path and validates them against the
// content hash of the bytes on disk.
type Cache struct {
	store  Store
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache backed by an in-memory LRU of the given size.
func New(size int) (*Cache, error) {
	s, err := NewMemoryStore(size)
	if err != nil {
		return nil, err
	}
	return NewWithStore(s), nil
}

// NewWithStore creates a cache over an existing store.
func NewWithStore(s Store) *Cache {
	return &Cache{store: s}
}

// Key returns the store key for a project-relative path.
func Key(path string) string {
	return "v" + Version + ":" + path
}

// Get returns the cached parse of path when its content hash matches src.
// A stale entry is evicted.
func (c *Cache) Get(path string, src []byte) (*uast.FileContext, bool) {
	return c.GetHash(path, uast.HashContent(src))
}

// GetHash is Get with a precomputed content hash.
func (c *Cache) GetHash(path, hash string) (*uast.FileContext, bool) {
	key := Key(path)
	fc, ok := c.store.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if fc.ContentHash != hash || fc.Path != path {
		c.store.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return fc, true
}

// Put stores a parsed file. Files without a content hash are not cached.
func (c *Cache) Put(fc *uast.FileContext) {
	if fc == nil || fc.ContentHash == "" {
		return
	}
	c.store.Put(Key(fc.Path), fc)
}

// Invalidate removes the entry for path.
func (c *Cache) Invalidate(path string) {
	c.store.Remove(Key(path))
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.store.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
