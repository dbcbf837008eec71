// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package imagecache provides a two-tier cache of decoded images.
//
// A Cache keeps recently used buffers in memory and every stored image on
// disk.  Buffers evicted from memory are recycled for future decodes, but
// only once no consumer can still be displaying them: every buffer returned
// by Get is marked valid, and the consumer must call SetValid(b, false) when
// it is done with it.  For typical use of a Cache behind an HTTP server, see
// cmd/imagecache/main.go.
package imagecache // import "willnorris.com/go/imagecache"

import (
	"fmt"

	"willnorris.com/go/imagecache/data"
	"willnorris.com/go/imagecache/internal/bitmappool"
	"willnorris.com/go/imagecache/internal/diskcache"
	"willnorris.com/go/imagecache/internal/memcache"
	"willnorris.com/go/imagecache/internal/refcount"
)

// Level is a memory pressure level.
type Level = memcache.Level

// Memory pressure levels, in increasing order.
const (
	None     = memcache.None
	Low      = memcache.Low
	Moderate = memcache.Moderate
	Severe   = memcache.Severe
)

// ParseLevel parses a level name such as "moderate".
func ParseLevel(s string) (Level, error) { return memcache.ParseLevel(s) }

// Thresholds configures the pressure levels at which Trim halves and clears
// the memory tier.
type Thresholds = memcache.Thresholds

// DefaultThresholds halves memory under moderate pressure and clears it under
// severe pressure.
var DefaultThresholds = memcache.DefaultThresholds

// ReferenceCounter decides when buffers may be recycled.  It is satisfied by
// the counter Open builds.
type ReferenceCounter interface {
	memcache.Counter
}

// Cache combines a memory tier and a disk tier into one read-through,
// write-through cache.  It is safe for concurrent use.
type Cache struct {
	mem     memcache.Cache
	disk    diskcache.Cache
	counter ReferenceCounter
	pool    *bitmappool.Pool

	// poolClear is the level at which Trim also empties pool.
	poolClear Level
}

// New returns a Cache over the given tiers.  counter must be the same
// counter mem reports its buffers to.
func New(mem memcache.Cache, disk diskcache.Cache, counter ReferenceCounter) *Cache {
	return &Cache{mem: mem, disk: disk, counter: counter, poolClear: DefaultThresholds.Clear}
}

// Config describes the tiers built by Open.  A zero size disables the
// corresponding tier or pool.
type Config struct {
	MemorySize int64 // bytes of decoded buffers held in memory
	PoolSize   int64 // bytes of recycled buffers kept for reuse

	DiskDir     string
	DiskSize    int64  // bytes of encoded images held on disk
	DiskBackend string // "diskv" (default) or "badger"

	// TrimThresholds sets the pressure levels at which Trim acts.  The zero
	// value means DefaultThresholds.
	TrimThresholds Thresholds

	// Strict panics on reference counting contract violations instead of
	// logging them.
	Strict bool

	Verbose bool
}

// Open builds a Cache, its reuse pool and reference counter from cfg.
func Open(cfg Config) (*Cache, error) {
	backend, err := diskcache.ParseBackend(cfg.DiskBackend)
	if err != nil {
		return nil, err
	}
	if cfg.DiskSize > 0 && cfg.DiskDir == "" {
		return nil, fmt.Errorf("disk cache size set without a directory")
	}

	pool := bitmappool.New(cfg.PoolSize)
	counter := refcount.New(pool, refcount.Strict(cfg.Strict))
	disk, err := diskcache.Open(cfg.DiskDir, cfg.DiskSize,
		diskcache.WithBackend(backend), diskcache.Verbose(cfg.Verbose))
	if err != nil {
		return nil, fmt.Errorf("opening disk cache: %w", err)
	}

	thresholds := cfg.TrimThresholds
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds
	}
	mem := memcache.New(counter, cfg.MemorySize, memcache.WithThresholds(thresholds))
	c := New(mem, disk, counter)
	c.pool = pool
	c.poolClear = thresholds.Clear
	return c, nil
}

// Get returns the buffer cached for key, checking memory before disk.  The
// returned buffer is marked valid; the caller must call SetValid(b, false)
// once it no longer uses it.  A disk hit is not copied into memory.
func (c *Cache) Get(key data.Key) (*data.Buffer, bool) {
	if v, ok := c.mem.GetValid(key); ok {
		requestsTotal.WithLabelValues("memory").Inc()
		return v.Buffer, true
	}
	if b, ok := c.disk.Get(key); ok {
		c.counter.SetValid(b, true)
		requestsTotal.WithLabelValues("disk").Inc()
		return b, true
	}
	requestsTotal.WithLabelValues("miss").Inc()
	return nil, false
}

// Set stores b for key in both tiers.
func (c *Cache) Set(key data.Key, b *data.Buffer) {
	c.mem.Set(key, b, false)
	c.disk.Set(key, b)
}

// Remove deletes key from both tiers, reporting whether either held it.
func (c *Cache) Remove(key data.Key) bool {
	// Do not short circuit.
	removedMemory := c.mem.Remove(key)
	removedDisk := c.disk.Remove(key)
	return removedMemory || removedDisk
}

// Clear empties both tiers.
func (c *Cache) Clear() {
	c.mem.Clear()
	c.disk.ClearCache()
}

// SetValid marks whether b is being displayed by a consumer.
func (c *Cache) SetValid(b *data.Buffer, valid bool) {
	c.counter.SetValid(b, valid)
}

// Trim releases memory in response to pressure.
func (c *Cache) Trim(level Level) {
	c.mem.Trim(level)
	if level >= c.poolClear && c.pool != nil {
		c.pool.Clear()
	}
}

// Acquire returns a recycled buffer of shape s, if one is available.
func (c *Cache) Acquire(s data.Shape) (*data.Buffer, bool) {
	if c.pool == nil {
		return nil, false
	}
	return c.pool.Acquire(s)
}

// Size returns the bytes held by the memory tier.
func (c *Cache) Size() int64 { return c.mem.Size() }

// MaxSize returns the byte limit of the memory tier.
func (c *Cache) MaxSize() int64 { return c.mem.MaxSize() }

// DiskSize returns the bytes held by the disk tier.
func (c *Cache) DiskSize() int64 { return c.disk.Size() }

// Flush forces the disk tier to stable storage.
func (c *Cache) Flush() { c.disk.Flush() }

// Close flushes and closes the disk tier.
func (c *Cache) Close() error { return c.disk.Close() }
