// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package memcache

import "github.com/prometheus/client_golang/prometheus"

var evictions = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "imagecache",
	Name:      "memory_evictions_total",
	Help:      "Number of buffers evicted from memory to satisfy the size limit.",
})

func init() {
	prometheus.MustRegister(evictions)
}
