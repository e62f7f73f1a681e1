// Package cache holds decoded, transformed bitmaps in memory keyed by fingerprint.
//
// Implementations synchronize internally and never perform I/O, so Get is safe
// to call from the dispatcher's sequencer.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
)

// DefaultMaxEntries bounds the entry count when NewLRU is given zero.
const DefaultMaxEntries = 1024

// Cache is a memory cache of finished bitmaps.
type Cache interface {
	Get(key fingerprint.Key) (*imaging.Bitmap, bool)
	Set(key fingerprint.Key, b *imaging.Bitmap)
	Evict(key fingerprint.Key) bool
	Clear()
	Len() int
	Size() int64
	MaxSize() int64
	Stats() Stats
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Puts      uint64 `json:"puts"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	Size      int64  `json:"size_bytes"`
	MaxSize   int64  `json:"max_size_bytes"`
}

// LRU is a least-recently-used cache bounded by both entry count and total
// pixel bytes. Whichever bound is hit first triggers eviction.
type LRU struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[fingerprint.Key, *imaging.Bitmap]
	size     int64
	maxBytes int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	puts      atomic.Uint64
	evictions atomic.Uint64
}

// NewLRU creates an LRU holding at most maxEntries bitmaps and maxBytes of
// pixel data. A maxBytes of zero or less disables the byte bound.
func NewLRU(maxBytes int64, maxEntries int) *LRU {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &LRU{maxBytes: maxBytes}
	// simplelru only errors on a non-positive size.
	c.lru, _ = simplelru.NewLRU[fingerprint.Key, *imaging.Bitmap](maxEntries, c.onEvict)
	return c
}

// onEvict runs with c.mu held, from inside simplelru calls.
func (c *LRU) onEvict(_ fingerprint.Key, b *imaging.Bitmap) {
	c.size -= b.ByteSize()
	c.evictions.Add(1)
}

// Get returns the bitmap stored under key and marks it recently used.
func (c *LRU) Get(key fingerprint.Key) (*imaging.Bitmap, bool) {
	c.mu.Lock()
	b, ok := c.lru.Get(key)
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return b, ok
}

// Set stores b under key, evicting older entries until both bounds hold.
// Bitmaps larger than the byte bound are not stored.
func (c *LRU) Set(key fingerprint.Key, b *imaging.Bitmap) {
	if b == nil {
		return
	}
	n := b.ByteSize()
	if c.maxBytes > 0 && n > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.size -= old.ByteSize()
	}
	c.lru.Add(key, b)
	c.size += n
	c.puts.Add(1)

	for c.maxBytes > 0 && c.size > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Evict removes key. It reports whether an entry was present.
func (c *LRU) Evict(key fingerprint.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every entry.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.size = 0
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the pixel bytes held.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// MaxSize returns the byte bound, or zero when unbounded.
func (c *LRU) MaxSize() int64 {
	return c.maxBytes
}

// Stats returns counters and occupancy.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	entries, size := c.lru.Len(), c.size
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Puts:      c.puts.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
		Size:      size,
		MaxSize:   c.maxBytes,
	}
}

type none struct{}

// None is a Cache that stores nothing. Every Get misses.
var None Cache = none{}

func (none) Get(fingerprint.Key) (*imaging.Bitmap, bool) { return nil, false }
func (none) Set(fingerprint.Key, *imaging.Bitmap)        {}
func (none) Evict(fingerprint.Key) bool                  { return false }
func (none) Clear()                                      {}
func (none) Len() int                                    { return 0 }
func (none) Size() int64                                 { return 0 }
func (none) MaxSize() int64                              { return 0 }
func (none) Stats() Stats                                { return Stats{} }
