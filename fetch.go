// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	aia "github.com/fcjr/aia-transport-go"
	"github.com/gregjones/httpcache"
)

// A Fetcher retrieves the encoded bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches remote images over HTTP.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher returns an HTTPFetcher whose client stores HTTP responses in
// cache, honoring their caching headers.  A nil cache disables response
// caching.  The underlying transport completes certificate chains from
// servers that omit intermediates.
func NewHTTPFetcher(cache httpcache.Cache) *HTTPFetcher {
	var transport http.RoundTripper = http.DefaultTransport
	if tr, err := aia.NewTransport(); err == nil {
		transport = tr
	} else {
		log.Printf("error creating AIA transport, using default: %v", err)
	}

	if cache != nil {
		transport = &httpcache.Transport{
			Transport:           transport,
			Cache:               cache,
			MarkCachedResponses: true,
		}
	}

	return &HTTPFetcher{Client: &http.Client{Transport: transport}}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching remote image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote URL %q returned status: %v", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FileFetcher reads images from a local directory.  URLs are either plain
// slash-separated paths or file:// URLs, both relative to Root.
type FileFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	name := strings.TrimPrefix(u, "file://")
	name = strings.TrimPrefix(name, "/")
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("invalid file path %q", u)
	}
	return fs.ReadFile(os.DirFS(f.Root), name)
}

// MultiFetcher dispatches to a Fetcher by URL scheme.  The empty scheme
// matches URLs with no scheme.
type MultiFetcher map[string]Fetcher

// Fetch implements Fetcher.
func (m MultiFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, err
	}
	f, ok := m[parsed.Scheme]
	if !ok {
		return nil, fmt.Errorf("no fetcher for URL scheme %q", parsed.Scheme)
	}
	return f.Fetch(ctx, u)
}
