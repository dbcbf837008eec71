// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package refcount decides when a cached buffer may be physically recycled.
//
// Each buffer carries a holder count, raised once for every cache tier entry
// that holds it, and a valid flag, set while a consumer may be displaying it.
// A buffer is handed to the reuse pool only once its count is zero and it is
// not valid.  No other code path may recycle a buffer.
package refcount

import (
	"fmt"
	"log"
	"sync"

	"willnorris.com/go/imagecache/data"
)

// A Pool receives buffers that are safe to recycle.
type Pool interface {
	Offer(*data.Buffer)
}

type value struct {
	count int
	valid bool
}

// Counter tracks holder counts and validity for buffers.  It is safe for
// concurrent use.  The zero value is not usable; use New.
type Counter struct {
	pool   Pool
	strict bool

	mu     sync.Mutex
	values map[*data.Buffer]*value
}

// Option configures a Counter.
type Option func(*Counter)

// Strict makes contract violations (decrementing below zero, invalidating an
// untracked buffer) panic.  Without it, violations are logged and ignored.
func Strict(strict bool) Option {
	return func(c *Counter) { c.strict = strict }
}

// New returns a Counter that offers recyclable buffers to pool.  If pool is
// nil, recyclable buffers are dropped for the garbage collector.
func New(pool Pool, opts ...Option) *Counter {
	c := &Counter{
		pool:   pool,
		values: make(map[*data.Buffer]*value),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Increment adds a holder for b, registering it if needed.
func (c *Counter) Increment(b *data.Buffer) {
	c.mu.Lock()
	v, ok := c.values[b]
	if !ok {
		v = new(value)
		c.values[b] = v
	}
	v.count++
	c.mu.Unlock()
}

// Decrement removes a holder for b.  If b has no holders left and is not
// valid, it is offered to the pool.
func (c *Counter) Decrement(b *data.Buffer) {
	c.mu.Lock()
	v, ok := c.values[b]
	if !ok || v.count == 0 {
		c.mu.Unlock()
		c.violation("decrement of buffer %p with no holders", b)
		return
	}
	v.count--
	recycle := c.releaseLocked(b, v)
	c.mu.Unlock()

	if recycle {
		c.offer(b)
	}
}

// SetValid marks whether b is currently visible to a consumer.  Every cache
// hit marks the returned buffer valid; the consumer must mark it invalid once
// it stops using it, or the buffer never returns to the pool.
func (c *Counter) SetValid(b *data.Buffer, valid bool) {
	c.mu.Lock()
	v, ok := c.values[b]
	if !ok {
		if !valid {
			c.mu.Unlock()
			c.violation("invalidate of untracked buffer %p", b)
			return
		}
		v = new(value)
		c.values[b] = v
	}
	v.valid = valid
	recycle := c.releaseLocked(b, v)
	c.mu.Unlock()

	if recycle {
		c.offer(b)
	}
}

// IsValid reports whether b is currently marked valid.
func (c *Counter) IsValid(b *data.Buffer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[b]
	return ok && v.valid
}

// Count returns the number of holders of b.
func (c *Counter) Count(b *data.Buffer) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[b]; ok {
		return v.count
	}
	return 0
}

// Len returns the number of buffers being tracked.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// releaseLocked forgets b and reports true if it is ready to be recycled.
func (c *Counter) releaseLocked(b *data.Buffer, v *value) bool {
	if v.count > 0 || v.valid {
		return false
	}
	delete(c.values, b)
	return true
}

func (c *Counter) offer(b *data.Buffer) {
	buffersRecycled.Inc()
	if c.pool != nil {
		c.pool.Offer(b)
	}
}

func (c *Counter) violation(format string, args ...interface{}) {
	contractViolations.Inc()
	msg := fmt.Sprintf(format, args...)
	if c.strict {
		panic("refcount: " + msg)
	}
	log.Printf("refcount: %s", msg)
}
