// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// PressureLevel maps heap usage against a soft limit onto a pressure level.
func PressureLevel(heap, limit uint64) Level {
	switch {
	case limit == 0:
		return None
	case heap >= limit:
		return Severe
	case heap >= limit/4*3:
		return Moderate
	case heap >= limit/2:
		return Low
	}
	return None
}

// WatchPressure samples the Go heap every interval until ctx is done, and
// calls trim whenever the pressure level changes.
func WatchPressure(ctx context.Context, limit uint64, interval time.Duration, trim func(Level)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := None
	var ms runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&ms)
		level := PressureLevel(ms.HeapAlloc, limit)
		if level == last {
			continue
		}
		log.Printf("memory pressure %v (heap %s of %s)", level, humanize.Bytes(ms.HeapAlloc), humanize.Bytes(limit))
		last = level
		trim(level)
	}
}
