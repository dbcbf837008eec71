// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package bitmappool provides a byte-size-limited pool of reusable image
// buffers, bucketed by shape.
package bitmappool

import (
	"container/list"
	"sync"

	"willnorris.com/go/imagecache/data"
)

// Pool holds buffers released by the reference counter until a decode of the
// same shape can reuse them.  When an offer would exceed MaxSize, the least
// recently offered buffers are dropped.  It is safe for concurrent use.
type Pool struct {
	maxSize int64

	mu     sync.Mutex
	lru    *list.List // Front is least-recent
	shapes map[data.Shape][]*list.Element
	size   int64
}

// New creates a Pool that holds at most maxSize bytes of buffers.  If
// maxSize <= 0, the pool keeps nothing.
func New(maxSize int64) *Pool {
	return &Pool{
		maxSize: maxSize,
		lru:     list.New(),
		shapes:  make(map[data.Shape][]*list.Element),
	}
}

// Offer adds b to the pool.  The caller must not use b afterwards.
func (p *Pool) Offer(b *data.Buffer) {
	if b.AllocationSize() > p.maxSize {
		return
	}

	p.mu.Lock()
	s := b.Shape()
	p.shapes[s] = append(p.shapes[s], p.lru.PushBack(b))
	p.size += b.AllocationSize()
	p.maybeDeleteOldest()
	p.mu.Unlock()
}

// Acquire removes and returns a zeroed buffer of shape s, if one is pooled.
func (p *Pool) Acquire(s data.Shape) (*data.Buffer, bool) {
	p.mu.Lock()
	elems := p.shapes[s]
	if len(elems) == 0 {
		p.mu.Unlock()
		poolMisses.Inc()
		return nil, false
	}
	le := elems[len(elems)-1]
	b := p.deleteElement(le)
	p.mu.Unlock()

	poolHits.Inc()
	b.Reset()
	return b, true
}

// Size returns the bytes of buffers currently pooled.
func (p *Pool) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// MaxSize returns the configured byte limit.
func (p *Pool) MaxSize() int64 {
	return p.maxSize
}

// Clear drops all pooled buffers.
func (p *Pool) Clear() {
	p.mu.Lock()
	p.lru.Init()
	p.shapes = make(map[data.Shape][]*list.Element)
	p.size = 0
	p.mu.Unlock()
}

func (p *Pool) maybeDeleteOldest() {
	for p.size > p.maxSize {
		le := p.lru.Front()
		if le == nil {
			panic("bitmappool: non-zero size but empty lru")
		}
		p.deleteElement(le)
	}
}

func (p *Pool) deleteElement(le *list.Element) *data.Buffer {
	b := p.lru.Remove(le).(*data.Buffer)
	s := b.Shape()
	elems := p.shapes[s]
	for i, e := range elems {
		if e == le {
			elems = append(elems[:i], elems[i+1:]...)
			break
		}
	}
	if len(elems) == 0 {
		delete(p.shapes, s)
	} else {
		p.shapes[s] = elems
	}
	p.size -= b.AllocationSize()
	return b
}
