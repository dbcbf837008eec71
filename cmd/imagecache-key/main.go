// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// The imagecache-key tool prints the cache key, digest, and on-disk blob
// location for an image URL.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"willnorris.com/go/imagecache"
	"willnorris.com/go/imagecache/data"
	"willnorris.com/go/imagecache/internal/diskcache"
)

var diskDir = flag.String("disk", "", "disk cache directory the blob path is relative to")

func main() {
	flag.Parse()

	k, err := parseKey(flag.Arg(0))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	digest := k.Digest()
	fmt.Printf("key: %v\n", k)
	fmt.Printf("digest: %v\n", digest)
	fmt.Printf("blob: %v\n", diskcache.BlobPath(*diskDir, digest))
}

// parseKey parses s as either an imagecache request URL or a remote URL with
// options in the URL fragment.
func parseKey(s string) (data.Key, error) {
	if s == "" {
		return data.Key{}, errors.New("imagecache-key url")
	}
	u, err := url.Parse(s)
	if err != nil {
		return data.Key{}, fmt.Errorf("unable to parse URL: %w", err)
	}

	// first try to parse this as an imagecache URL, containing
	// options and the remote URL embedded
	if k, err := imagecache.NewRequest(&http.Request{URL: u}); err == nil {
		return k, nil
	}

	// second, we assume that this is the remote URL itself.  If a fragment
	// is present, treat it as an option string.
	return data.ParseKey(s), nil
}
