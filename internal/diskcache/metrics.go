// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package diskcache

import "github.com/prometheus/client_golang/prometheus"

var (
	evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "disk_evictions_total",
		Help:      "Number of images evicted from disk to satisfy the size limit.",
	})
	diskErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "disk_errors_total",
		Help:      "Number of disk cache storage failures.",
	})
)

func init() {
	prometheus.MustRegister(evictions)
	prometheus.MustRegister(diskErrors)
}
