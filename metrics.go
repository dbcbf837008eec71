// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "requests_total",
		Help:      "Number of cache lookups, by the tier that answered.",
	}, []string{"result"})
	decodeSummary = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "imagecache",
		Name:      "decode_seconds",
		Help:      "Time taken to decode images in seconds.",
	})
	fetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagecache",
		Name:      "fetch_errors_total",
		Help:      "Total image fetch failures.",
	})
	httpRequestsResponseTime = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "http",
		Name:      "response_time_seconds",
		Help:      "Request response times",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(decodeSummary)
	prometheus.MustRegister(fetchErrors)
	prometheus.MustRegister(httpRequestsResponseTime)
}
