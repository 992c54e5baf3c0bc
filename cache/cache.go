// Package cache implements the bounded in-memory result cache shared by
// every translation request. Entries are keyed by (source language,
// target language, original key) and evicted oldest-inserted first.
package cache

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/minios-linux/modtranslate/metrics"
)

// DefaultMaxSize is the capacity used when none is configured.
const DefaultMaxSize = 10000

// Key identifies one cached translation.
type Key struct {
	SourceLang string
	TargetLang string
	Key        string
}

// Stats reports the cache occupancy.
type Stats struct {
	Size    int `json:"size"`
	MaxSize int `json:"maxSize"`
}

// ResultCache is a bounded map with insertion-order eviction. Re-inserting
// an existing key overwrites the value but keeps the entry's age.
type ResultCache struct {
	mu      sync.Mutex
	entries *orderedmap.OrderedMap[Key, string]
	maxSize int
}

// New returns a cache holding at most maxSize entries (DefaultMaxSize when <= 0).
func New(maxSize int) *ResultCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &ResultCache{
		entries: orderedmap.New[Key, string](),
		maxSize: maxSize,
	}
}

// Get returns the cached translation of key for the language pair.
func (c *ResultCache) Get(sourceLang, targetLang, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(Key{SourceLang: sourceLang, TargetLang: targetLang, Key: key})
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	return v, ok
}

// Set stores a translation. When a new entry would exceed capacity the
// single oldest-inserted entry is evicted first.
func (c *ResultCache) Set(sourceLang, targetLang, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := Key{SourceLang: sourceLang, TargetLang: targetLang, Key: key}
	if _, exists := c.entries.Get(k); !exists && c.entries.Len() >= c.maxSize {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
			metrics.CacheEvictions.Inc()
		}
	}
	c.entries.Set(k, value)
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[Key, string]()
}

// Stats returns the current size and capacity.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.entries.Len(), MaxSize: c.maxSize}
}
