// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"willnorris.com/go/imagecache/data"
)

// URLError reports a malformed URL error.
type URLError struct {
	Message string
	URL     *url.URL
}

func (e URLError) Error() string {
	return fmt.Sprintf("malformed URL %q: %s", e.URL, e.Message)
}

// reCleanedURL and reCleanedFileURL match a scheme whose slashes were
// collapsed or repeated by an upstream proxy or the browser, as in
// "http:/example.com".
var (
	reCleanedURL     = regexp.MustCompile(`^(https?):/+`)
	reCleanedFileURL = regexp.MustCompile(`^file:/+`)
)

// NewRequest parses an http.Request of the form "/{options}/{url}" into the
// Key of the image it asks for.  The options segment may be empty.  The
// remote URL may be escaped any number of times, and must be an absolute
// http, https, or file URL.
func NewRequest(r *http.Request) (data.Key, error) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	opt, remote, ok := strings.Cut(path, "/")
	if !ok || remote == "" {
		return data.Key{}, URLError{"too few path segments", r.URL}
	}

	// unescape until the remote URL has a visible scheme separator, so
	// escaped query parameters inside it are left alone
	for !strings.Contains(remote, ":/") {
		un, err := url.PathUnescape(remote)
		if err != nil || un == remote {
			break
		}
		remote = un
	}
	remote = reCleanedURL.ReplaceAllString(remote, "$1://")
	remote = reCleanedFileURL.ReplaceAllString(remote, "file:///")

	u, err := url.Parse(remote)
	if err != nil {
		return data.Key{}, URLError{fmt.Sprintf("unable to parse remote URL: %v", err), r.URL}
	}
	if !u.IsAbs() {
		return data.Key{}, URLError{"must provide absolute remote URL", r.URL}
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return data.Key{}, URLError{"remote URL must have http, https, or file URL", r.URL}
	}

	// query string is always part of the remote URL
	if r.URL.RawQuery != "" {
		u.RawQuery = r.URL.RawQuery
	}

	return data.Key{URL: u.String(), Options: data.ParseOptions(opt)}, nil
}
