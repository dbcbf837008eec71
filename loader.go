// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
	"willnorris.com/go/imagecache/data"
)

// Loader reads images through a Cache, fetching and decoding them on a miss.
type Loader struct {
	Cache   *Cache
	Fetcher Fetcher
	Decoder Decoder

	// Timeout limits how long a fetch may take.  Zero means no limit.
	Timeout time.Duration

	// Verbose logs every fetch.
	Verbose bool

	group singleflight.Group
}

// flight is the result of one fetch shared by concurrent loads.
type flight struct {
	buffer *data.Buffer
	raw    []byte
}

// Load returns the image for key.  Like Cache.Get, the returned buffer is
// marked valid and the caller must call Cache.SetValid(b, false) when done.
// Concurrent loads of the same key share one fetch, but each caller gets a
// buffer it can release independently.
func (l *Loader) Load(ctx context.Context, key data.Key) (*data.Buffer, error) {
	if b, ok := l.Cache.Get(key); ok {
		return b, nil
	}

	var leader bool
	v, err, _ := l.group.Do(key.String(), func() (interface{}, error) {
		leader = true
		raw, err := l.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		b, err := l.decode(raw, key)
		if err != nil {
			return nil, err
		}

		// Mark valid before the memory tier can see it, so a concurrent
		// eviction cannot recycle it on the way out.
		l.Cache.SetValid(b, true)
		l.Cache.Set(key, b)
		return &flight{buffer: b, raw: raw}, nil
	})
	if err != nil {
		return nil, err
	}
	f := v.(*flight)
	if leader {
		return f.buffer, nil
	}

	// The leader may release its buffer at any time, so waiters read the
	// cache again or decode their own copy.
	if b, ok := l.Cache.Get(key); ok {
		return b, nil
	}
	b, err := l.decode(f.raw, key)
	if err != nil {
		return nil, err
	}
	l.Cache.SetValid(b, true)
	return b, nil
}

// fetch retrieves the encoded image for key.  The fetch is shared with other
// waiters, so it is not canceled along with ctx.
func (l *Loader) fetch(ctx context.Context, key data.Key) ([]byte, error) {
	if l.Verbose {
		log.Printf("fetching remote URL: %v", key.URL)
	}
	ctx = context.WithoutCancel(ctx)
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	raw, err := l.Fetcher.Fetch(ctx, key.URL)
	if err != nil {
		fetchErrors.Inc()
		return nil, err
	}
	return raw, nil
}

func (l *Loader) decode(raw []byte, key data.Key) (*data.Buffer, error) {
	start := time.Now()
	b, err := l.Decoder.Decode(raw, key.Options)
	if err != nil {
		return nil, fmt.Errorf("error decoding %v: %w", key, err)
	}
	decodeSummary.Observe(time.Since(start).Seconds())
	return b, nil
}
