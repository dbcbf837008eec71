// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package bitmappool

import "github.com/prometheus/client_golang/prometheus"

var (
	poolHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "pool_hits_total",
		Help:      "Number of decodes that reused a pooled buffer.",
	})
	poolMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "pool_misses_total",
		Help:      "Number of decodes that found no pooled buffer of the right shape.",
	})
)

func init() {
	prometheus.MustRegister(poolHits)
	prometheus.MustRegister(poolMisses)
}
