// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package data provides common shared data structures for imagecache.
package data

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	optFit            = "fit"
	optFlipVertical   = "fv"
	optFlipHorizontal = "fh"
	optRotatePrefix   = "r"
	optSizeDelimiter  = "x"
)

// Options specifies transformations that were applied to produce a cached
// image.  They are part of a Key's identity; the cache never interprets them.
type Options struct {
	// See ParseOptions for interpretation of Width and Height values
	Width  float64
	Height float64

	// If true, resize the image to fit in the specified dimensions.  Image
	// will not be cropped, and aspect ratio will be maintained.
	Fit bool

	// Rotate image the specified degrees counter-clockwise.  Valid values
	// are 90, 180, 270.
	Rotate int

	FlipVertical   bool
	FlipHorizontal bool
}

func (o Options) String() string {
	opts := []string{fmt.Sprintf("%v%s%v", o.Width, optSizeDelimiter, o.Height)}
	if o.Fit {
		opts = append(opts, optFit)
	}
	if o.Rotate != 0 {
		opts = append(opts, fmt.Sprintf("%s%d", optRotatePrefix, o.Rotate))
	}
	if o.FlipVertical {
		opts = append(opts, optFlipVertical)
	}
	if o.FlipHorizontal {
		opts = append(opts, optFlipHorizontal)
	}
	sort.Strings(opts)
	return strings.Join(opts, ",")
}

// IsZero reports whether o requests no transformation at all.
func (o Options) IsZero() bool {
	return o == Options{}
}

// ParseOptions parses str as a list of comma separated transformation
// options.  The options can be specified in any order.  Unrecognized
// options are ignored, and duplicate options take the last value.
//
// # Size
//
// The size option takes the general form "{width}x{height}", where width and
// height are numbers.  If either value is omitted, it is left as zero.  If
// only one number is given, it is used for both width and height.
//
// # Rotation and Flips
//
// The "r{degrees}" option rotates the image.  "fv" and "fh" flip the image
// vertically and horizontally.
//
// Examples
//
//	0x0       - no resizing
//	200x      - 200 pixels wide, proportional height
//	100x150   - 100 by 150 pixels
//	100,r90   - 100 pixels square, rotated 90 degrees
//	100,fv,fh - 100 pixels square, flipped horizontal and vertical
//	200x,fit  - 200 pixels wide, fit within bounds
func ParseOptions(str string) Options {
	var options Options

	for _, opt := range strings.Split(str, ",") {
		switch {
		case len(opt) == 0:
			// do nothing
		case opt == optFit:
			options.Fit = true
		case opt == optFlipVertical:
			options.FlipVertical = true
		case opt == optFlipHorizontal:
			options.FlipHorizontal = true
		case strings.HasPrefix(opt, optRotatePrefix):
			value := strings.TrimPrefix(opt, optRotatePrefix)
			options.Rotate, _ = strconv.Atoi(value)
		case strings.Contains(opt, optSizeDelimiter):
			size := strings.SplitN(opt, optSizeDelimiter, 2)
			if w := size[0]; w != "" {
				options.Width, _ = strconv.ParseFloat(w, 64)
			}
			if h := size[1]; h != "" {
				options.Height, _ = strconv.ParseFloat(h, 64)
			}
		default:
			if size, err := strconv.ParseFloat(opt, 64); err == nil {
				options.Width = size
				options.Height = size
			}
		}
	}

	return options
}

// Key identifies a cached image: the normalized source URL plus any
// transformation options.  Keys are comparable and may be used as map keys.
type Key struct {
	URL     string
	Options Options
}

// NewKey returns the Key for url with no transformation options.
func NewKey(url string) Key {
	return Key{URL: url}
}

// String returns the canonical form of k, with options carried in the URL
// fragment.
func (k Key) String() string {
	if k.Options.IsZero() {
		return k.URL
	}
	return k.URL + "#" + k.Options.String()
}

// Digest returns a stable hex digest of k, used to address on-disk storage.
// Distinct keys that share a digest share a storage slot.
func (k Key) Digest() string {
	h := md5.New()
	_, _ = io.WriteString(h, k.String())
	return hex.EncodeToString(h.Sum(nil))
}

// ParseKey parses s, a URL optionally followed by "#options", into a Key.
func ParseKey(s string) Key {
	u, opt, _ := strings.Cut(s, "#")
	return Key{URL: u, Options: ParseOptions(opt)}
}
