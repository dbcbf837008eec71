// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package memcache provides a byte-size-limited, in-memory LRU cache of
// decoded image buffers.
package memcache

import (
	"container/list"
	"sync"

	"willnorris.com/go/imagecache/data"
)

// Counter is notified when the cache starts and stops holding a buffer, and
// when a buffer read from the cache becomes visible to a consumer.  It is
// satisfied by *refcount.Counter.
type Counter interface {
	Increment(*data.Buffer)
	Decrement(*data.Buffer)
	SetValid(b *data.Buffer, valid bool)
}

// Value is a cached buffer.
type Value struct {
	Buffer *data.Buffer

	// Sampled reports whether Buffer was decoded at reduced resolution.
	Sampled bool
}

// Cache is an in-memory buffer cache.
type Cache interface {
	// Get returns the buffer stored for key and marks it most recently used.
	Get(key data.Key) (Value, bool)

	// GetValid is like Get, but also marks the buffer valid on the counter
	// before any concurrent Set, Remove or eviction can release it.
	GetValid(key data.Key) (Value, bool)

	// Set stores b for key, replacing any existing entry.
	Set(key data.Key, b *data.Buffer, sampled bool)

	// Remove deletes the entry for key, reporting whether one existed.
	Remove(key data.Key) bool

	// Clear removes all entries.
	Clear()

	// Trim releases memory in response to a pressure level.
	Trim(level Level)

	// Size returns the bytes of buffers currently held.
	Size() int64

	// MaxSize returns the configured byte limit.
	MaxSize() int64
}

// New returns a Cache holding at most maxSize bytes of buffers.  Every
// buffer the cache holds is counted once on counter.  If maxSize <= 0, the
// returned cache stores nothing.
func New(counter Counter, maxSize int64, opts ...Option) Cache {
	if maxSize <= 0 {
		return NopCache
	}

	c := &lruCache{
		counter:    counter,
		maxSize:    maxSize,
		thresholds: DefaultThresholds,
		cache:      make(map[data.Key]*list.Element),
		lru:        list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Cache.
type Option func(*lruCache)

// WithThresholds sets the pressure levels at which Trim acts.
func WithThresholds(t Thresholds) Option {
	return func(c *lruCache) { c.thresholds = t }
}

// lruCache evicts the least recently used entries when maxSize would be
// exceeded.
type lruCache struct {
	counter    Counter
	maxSize    int64
	thresholds Thresholds

	mu    sync.Mutex
	cache map[data.Key]*list.Element
	lru   *list.List // Front is least-recent
	size  int64
}

type entry struct {
	key     data.Key
	buffer  *data.Buffer
	sampled bool
	size    int64
}

func (c *lruCache) Get(key data.Key) (Value, bool) {
	return c.get(key, false)
}

func (c *lruCache) GetValid(key data.Key) (Value, bool) {
	return c.get(key, true)
}

func (c *lruCache) get(key data.Key, markValid bool) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	le, ok := c.cache[key]
	if !ok {
		return Value{}, false
	}
	c.lru.MoveToBack(le)
	e := le.Value.(*entry)
	// The entry still holds the buffer here, so its count is non-zero and
	// it cannot have been recycled.
	if markValid {
		c.counter.SetValid(e.buffer, true)
	}
	return Value{Buffer: e.buffer, Sampled: e.sampled}, true
}

func (c *lruCache) Set(key data.Key, b *data.Buffer, sampled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := b.AllocationSize()
	le, ok := c.cache[key]

	// Storing a buffer larger than the whole cache would flush every other
	// entry, so drop the stale entry for key instead.
	if size > c.maxSize {
		if ok {
			c.evict(le)
		}
		return
	}

	// Release the old buffer before counting the new one, unless they are
	// the same buffer, which must not reach zero holders in between.
	if ok && le.Value.(*entry).buffer != b {
		c.evict(le)
		ok = false
	}
	c.counter.Increment(b)
	if ok {
		c.evict(le)
	}

	e := &entry{key: key, buffer: b, sampled: sampled, size: size}
	c.cache[key] = c.lru.PushBack(e)
	c.size += size

	c.trimToSize(c.maxSize)
}

func (c *lruCache) Remove(key data.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	le, ok := c.cache[key]
	if ok {
		c.evict(le)
	}
	return ok
}

func (c *lruCache) Clear() {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
}

func (c *lruCache) Trim(level Level) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case level >= c.thresholds.Clear:
		c.clearLocked()
	case level >= c.thresholds.Halve:
		c.trimToSize(c.size / 2)
	}
}

func (c *lruCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *lruCache) MaxSize() int64 {
	return c.maxSize
}

func (c *lruCache) clearLocked() {
	for le := c.lru.Front(); le != nil; le = c.lru.Front() {
		c.evict(le)
	}
}

// trimToSize evicts least recently used entries until size <= max.
func (c *lruCache) trimToSize(max int64) {
	for c.size > max {
		le := c.lru.Front()
		if le == nil {
			panic("memcache: non-zero size but empty lru")
		}
		c.evict(le)
		evictions.Inc()
	}
}

// evict is the only way an entry leaves the cache.  It releases the entry's
// buffer on the counter exactly once.
func (c *lruCache) evict(le *list.Element) {
	e := c.lru.Remove(le).(*entry)
	delete(c.cache, e.key)
	c.size -= e.size
	c.counter.Decrement(e.buffer)
}
