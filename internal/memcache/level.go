// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package memcache

import (
	"fmt"
	"strings"
)

// Level is a memory pressure level, ordered from no pressure to severe.
type Level int

const (
	None Level = iota
	Low
	Moderate
	Severe
)

var levelNames = []string{"none", "low", "moderate", "severe"}

func (l Level) String() string {
	if l >= None && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel parses a level name such as "moderate".
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return None, fmt.Errorf("unknown pressure level %q", s)
}

// Thresholds configures how Trim responds to pressure.  At Clear or above
// the cache is emptied; at Halve or above it is trimmed to half its size;
// below Halve nothing happens.
type Thresholds struct {
	Halve Level
	Clear Level
}

// DefaultThresholds halves the cache under moderate pressure and empties it
// under severe pressure.
var DefaultThresholds = Thresholds{Halve: Moderate, Clear: Severe}
