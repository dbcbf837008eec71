// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package refcount

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	buffersRecycled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "buffers_recycled_total",
		Help:      "Number of buffers released to the reuse pool.",
	})
	contractViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "buffer_contract_violations_total",
		Help:      "Number of invalid reference count operations.",
	})
)

func init() {
	prometheus.MustRegister(buffersRecycled)
	prometheus.MustRegister(contractViolations)
}
