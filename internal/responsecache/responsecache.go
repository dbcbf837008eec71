// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package responsecache provides an on-disk cache of remote HTTP responses
// whose entries expire after a fixed TTL.  It satisfies httpcache.Cache, so
// it can sit behind the fetch transport alongside an in-memory cache.
package responsecache

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/gregjones/httpcache/diskcache"
	"github.com/peterbourgon/diskv"
)

// Cache stores response bodies with httpcache's diskcache and their expiry
// times alongside in a separate diskv store.
type Cache struct {
	responses *diskcache.Cache
	blobs     *diskv.Diskv // files behind responses
	expiry    *diskv.Diskv
	ttl       time.Duration
	now       func() time.Time

	mu sync.RWMutex
}

// New returns a Cache rooted at dir whose entries expire ttl after they are
// stored.  A ttl of zero never expires entries.
func New(dir string, ttl time.Duration) *Cache {
	// For file "c0ffee", store file as "c0/ff/c0ffee"
	transform := func(s string) []string { return []string{s[0:2], s[2:4]} }
	blobs := diskv.New(diskv.Options{
		BasePath:  filepath.Join(dir, "responses"),
		Transform: transform,
	})
	return &Cache{
		responses: diskcache.NewWithDiskv(blobs),
		blobs:     blobs,
		expiry: diskv.New(diskv.Options{
			BasePath:  filepath.Join(dir, "expiry"),
			Transform: transform,
		}),
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the response cached for key if it has not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	expired := c.expiredLocked(digest(key))
	c.mu.RUnlock()

	if expired {
		c.Delete(key)
		return nil, false
	}
	return c.responses.Get(key)
}

// Set stores resp for key.
func (c *Cache) Set(key string, resp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl > 0 {
		t, err := c.now().Add(c.ttl).MarshalBinary()
		if err == nil {
			err = c.expiry.Write(digest(key), t)
		}
		if err != nil {
			log.Printf("error saving response expiry: %v", err)
			return
		}
	}
	c.responses.Set(key, resp)
}

// Delete removes the response for key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key, digest(key))
}

// CleanupExpired removes all expired entries from the cache.
func (c *Cache) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel := make(chan struct{})
	defer close(cancel)
	var expired []string
	for d := range c.expiry.Keys(cancel) {
		if c.expiredLocked(d) {
			expired = append(expired, d)
		}
	}
	// diskcache keys its files by the same digest
	for _, d := range expired {
		if c.blobs.Has(d) {
			if err := c.blobs.Erase(d); err != nil {
				log.Printf("error deleting expired response: %v", err)
			}
		}
		c.eraseExpiry(d)
	}
}

func (c *Cache) expiredLocked(d string) bool {
	raw, err := c.expiry.Read(d)
	if err != nil {
		return false
	}
	var t time.Time
	if err := t.UnmarshalBinary(raw); err != nil {
		log.Printf("error decoding response expiry: %v", err)
		return true
	}
	return c.now().After(t)
}

func (c *Cache) deleteLocked(key, d string) {
	c.responses.Delete(key)
	c.eraseExpiry(d)
}

func (c *Cache) eraseExpiry(d string) {
	if c.expiry.Has(d) {
		if err := c.expiry.Erase(d); err != nil {
			log.Printf("error deleting response expiry: %v", err)
		}
	}
}

// digest matches the file names httpcache's diskcache uses for key.
func digest(key string) string {
	h := md5.New()
	_, _ = io.WriteString(h, key)
	return hex.EncodeToString(h.Sum(nil))
}
