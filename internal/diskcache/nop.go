// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package diskcache

import "willnorris.com/go/imagecache/data"

// NopCache provides a no-op cache implementation that doesn't actually cache anything.
var NopCache = new(nopCache)

type nopCache struct{}

func (c nopCache) Get(data.Key) (*data.Buffer, bool) { return nil, false }
func (c nopCache) Set(data.Key, *data.Buffer)        {}
func (c nopCache) Remove(data.Key) bool              { return false }
func (c nopCache) ClearCache()                       {}
func (c nopCache) Flush()                            {}
func (c nopCache) Size() int64                       { return 0 }
func (c nopCache) MaxSize() int64                    { return 0 }
func (c nopCache) Close() error                      { return nil }
