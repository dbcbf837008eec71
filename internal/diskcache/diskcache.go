// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package diskcache provides a byte-size-limited, persistent LRU cache of
// images stored on local disk.
//
// Images are stored PNG-encoded under the digest of their key.  Recency and
// sizes are kept in an append-only journal so the cache survives restarts.
// Storage errors are logged and never returned: a failed write leaves the
// previous blob for the key, if any, in place, and an unreadable blob is a
// miss.
package diskcache

import (
	"bufio"
	"bytes"
	"container/list"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"willnorris.com/go/imagecache/data"
)

// Cache is a persistent image cache.
type Cache interface {
	// Get returns a newly decoded buffer for key.
	Get(key data.Key) (*data.Buffer, bool)

	// Set stores b for key, replacing any existing blob, and flushes.
	Set(key data.Key, b *data.Buffer)

	// Remove deletes the blob for key, reporting whether one existed.
	Remove(key data.Key) bool

	// ClearCache removes all blobs.
	ClearCache()

	// Flush forces the journal and store to stable storage.
	Flush()

	// Size returns the bytes of blobs currently stored.
	Size() int64

	// MaxSize returns the configured byte limit.
	MaxSize() int64

	// Close flushes and releases the cache's files.
	Close() error
}

type options struct {
	backend Backend
	store   Store
	verbose bool
}

// Option configures Open.
type Option func(*options)

// WithBackend selects the blob store implementation.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithStore uses s to hold blobs instead of opening a backend.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// Verbose logs every eviction.
func Verbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// Open opens the cache stored in dir, creating it if needed, holding at most
// maxSize bytes of encoded images.  If maxSize <= 0, the returned cache
// stores nothing and dir is not touched.
func Open(dir string, maxSize int64, opts ...Option) (Cache, error) {
	if maxSize <= 0 {
		return NopCache, nil
	}

	o := options{backend: Diskv}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating disk cache directory: %w", err)
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = openStore(o.backend, dir); err != nil {
			return nil, err
		}
	}

	c := &diskCache{
		dir:     dir,
		maxSize: maxSize,
		store:   store,
		verbose: o.verbose,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}

	if err := c.readJournal(); err != nil {
		// Without a trustworthy index, blobs on disk cannot be accounted
		// for, so start over.
		log.Printf("diskcache: discarding cache in %s: %v", dir, err)
		c.entries = make(map[string]*list.Element)
		c.lru.Init()
		c.size = 0
		c.dirty = nil
		if err := store.EraseAll(); err != nil {
			store.Close()
			return nil, fmt.Errorf("clearing disk cache: %w", err)
		}
	}

	c.dropUnindexed()
	c.trimToSize(maxSize)

	if err := c.rebuildJournal(); err != nil {
		store.Close()
		return nil, fmt.Errorf("writing disk cache journal: %w", err)
	}

	if c.verbose {
		log.Printf("diskcache: opened %s with %d entries (%s of %s)", dir, c.lru.Len(),
			humanize.Bytes(uint64(c.size)), humanize.Bytes(uint64(maxSize)))
	}
	return c, nil
}

type diskCache struct {
	dir     string
	maxSize int64
	store   Store
	verbose bool

	mu        sync.Mutex
	journal   *os.File
	w         *bufio.Writer
	redundant int
	entries   map[string]*list.Element
	lru       *list.List // Front is least-recent
	size      int64

	// dirty holds digests with an unfinished write while the journal is
	// replayed.
	dirty map[string]bool
}

type entry struct {
	digest string
	size   int64
}

func (c *diskCache) Get(key data.Key) (*data.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	digest := key.Digest()
	le, ok := c.entries[digest]
	if !ok {
		return nil, false
	}

	raw, err := c.store.Read(digest)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logError("error reading %s: %v", digest, err)
		}
		c.removeLocked(digest)
		return nil, false
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		c.logError("error decoding %s: %v", digest, err)
		c.removeLocked(digest)
		return nil, false
	}

	c.lru.MoveToBack(le)
	c.appendJournal(opRead, digest, 0)
	c.redundant++
	c.maybeCompact()

	return data.WrapNRGBA(imaging.Clone(img)), true
}

func (c *diskCache) Set(key data.Key, b *data.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	digest := key.Digest()

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, b.Image(), imaging.PNG); err != nil {
		c.logError("error encoding %s: %v", digest, err)
		return
	}
	size := int64(buf.Len())

	if size > c.maxSize {
		c.removeLocked(digest)
		c.flushLocked()
		return
	}

	c.appendJournal(opDirty, digest, 0)
	c.redundant++
	if err := c.flushLocked(); err != nil {
		return
	}

	if err := c.store.Write(digest, buf.Bytes()); err != nil {
		c.logError("error writing %s: %v", digest, err)
		// The store still holds the previous blob, if any.
		if le, ok := c.entries[digest]; ok {
			c.lru.MoveToBack(le)
			c.appendJournal(opClean, digest, le.Value.(*entry).size)
		} else {
			c.appendJournal(opRemove, digest, 0)
			if err := c.store.Erase(digest); err != nil {
				c.logError("error erasing %s: %v", digest, err)
			}
		}
		c.redundant++
		c.flushLocked()
		return
	}

	if le, ok := c.entries[digest]; ok {
		c.unlink(le)
		c.redundant++
	}
	c.link(digest, size)
	c.appendJournal(opClean, digest, size)

	c.trimToSize(c.maxSize)
	c.flushLocked()
	c.maybeCompact()
}

func (c *diskCache) Remove(key data.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.removeLocked(key.Digest())
	c.maybeCompact()
	return ok
}

func (c *diskCache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.EraseAll(); err != nil {
		c.logError("error clearing store: %v", err)
	}
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	if err := c.rebuildJournal(); err != nil {
		c.logError("error writing journal: %v", err)
	}
}

func (c *diskCache) Flush() {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()
}

func (c *diskCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *diskCache) MaxSize() int64 {
	return c.maxSize
}

func (c *diskCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.flushLocked()
	if c.journal != nil {
		if cerr := c.journal.Close(); err == nil {
			err = cerr
		}
		c.journal, c.w = nil, nil
	}
	if cerr := c.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// removeLocked erases the blob for digest and drops it from the index.
func (c *diskCache) removeLocked(digest string) bool {
	le, ok := c.entries[digest]
	if !ok {
		return false
	}
	if err := c.store.Erase(digest); err != nil {
		c.logError("error erasing %s: %v", digest, err)
	}
	c.unlink(le)
	c.appendJournal(opRemove, digest, 0)
	c.redundant += 2
	return true
}

func (c *diskCache) trimToSize(max int64) {
	for c.size > max {
		le := c.lru.Front()
		if le == nil {
			panic("diskcache: non-zero size but empty lru")
		}
		e := le.Value.(*entry)
		if c.verbose {
			log.Printf("diskcache: evicting %s (%s)", e.digest, humanize.Bytes(uint64(e.size)))
		}
		c.removeLocked(e.digest)
		evictions.Inc()
	}
}

func (c *diskCache) flushLocked() error {
	if c.w == nil {
		return nil
	}
	err := c.w.Flush()
	if err == nil {
		err = c.journal.Sync()
	}
	if err == nil {
		err = c.store.Sync()
	}
	if err != nil {
		c.logError("error flushing: %v", err)
	}
	return err
}

func (c *diskCache) logError(format string, args ...interface{}) {
	diskErrors.Inc()
	log.Printf("diskcache: "+format, args...)
}
