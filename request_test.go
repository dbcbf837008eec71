// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"net/http"
	"testing"

	"willnorris.com/go/imagecache/data"
)

var emptyOptions = data.Options{}

// Test that request URLs are properly parsed into Options and a remote URL.
// This test verifies that invalid remote URLs throw errors, and that valid
// combinations of Options and URL are accepted.  See data.TestParseOptions
// for option parsing itself.
func TestNewRequest(t *testing.T) {
	tests := []struct {
		URL         string       // input URL to parse as an imagecache request
		RemoteURL   string       // expected URL of remote image parsed from input
		Options     data.Options // expected options parsed from input
		ExpectError bool         // whether an error is expected from NewRequest
	}{
		// invalid URLs
		{"http://localhost/", "", emptyOptions, true},
		{"http://localhost/1/", "", emptyOptions, true},
		{"http://localhost//example.com/foo", "", emptyOptions, true},
		{"http://localhost//ftp://example.com/foo", "", emptyOptions, true},

		// invalid URL because options segment is required
		{"http://localhost/http://example.com/foo", "", emptyOptions, true},

		// invalid options.  These won't return errors, but will not fully parse the options
		{
			"http://localhost/s/http://example.com/",
			"http://example.com/", emptyOptions, false,
		},
		{
			"http://localhost/1xs/http://example.com/",
			"http://example.com/", data.Options{Width: 1}, false,
		},

		// valid URLs
		{
			"http://localhost//http://example.com/foo",
			"http://example.com/foo", emptyOptions, false,
		},
		{
			"http://localhost/x/http://example.com/foo",
			"http://example.com/foo", emptyOptions, false,
		},
		{
			"http://localhost/0x0/https://example.com/foo",
			"https://example.com/foo", emptyOptions, false,
		},
		{
			"http://localhost/1x2/http://example.com/foo",
			"http://example.com/foo", data.Options{Width: 1, Height: 2}, false,
		},
		{
			"http://localhost/0x0/http://example.com/foo?bar",
			"http://example.com/foo?bar", emptyOptions, false,
		},
		{
			"http://localhost/x/http:/example.com/foo",
			"http://example.com/foo", emptyOptions, false,
		},
		{
			"http://localhost/x/http:///example.com/foo",
			"http://example.com/foo", emptyOptions, false,
		},
		{ // escaped path
			"http://localhost/x/http://example.com/%2C",
			"http://example.com/%2C", emptyOptions, false,
		},
		// unescaped querystring
		{
			"http://localhost/x/http://example.com/foo/bar?hello=world",
			"http://example.com/foo/bar?hello=world", emptyOptions, false,
		},
		// escaped remote including querystring
		{
			"http://localhost/x/http%3A%2F%2Fexample.com%2Ffoo%2Fbar%3Fhello%3Dworld",
			"http://example.com/foo/bar?hello=world", emptyOptions, false,
		},
		// multi-escaped remote
		{
			"http://localhost/x/https%25253A%25252F%25252Fexample.com%25252Ffoo%25252Fbar%25253Fhello%25253Dworld",
			"https://example.com/foo/bar?hello=world", emptyOptions, false,
		},
		// escaped remote containing double escaped url as param
		// test that we don't over-decode remote url breaking parameters
		{
			"http://localhost/x/http%3A%2F%2Fexample.com%2Ffoo%2Fbar%3Fhello%3Dworld%26url%3Dhttps%253A%252F%252Fwww.example.com%252F%253Ffoo%253Dbar%2526hello%253Dworld",
			"http://example.com/foo/bar?hello=world&url=https%3A%2F%2Fwww.example.com%2F%3Ffoo%3Dbar%26hello%3Dworld", emptyOptions, false,
		},

		// local files
		{
			"http://localhost/r90/file:///images/a.png",
			"file:///images/a.png", data.Options{Rotate: 90}, false,
		},
		{
			"http://localhost/x/file:/images/a.png",
			"file:///images/a.png", emptyOptions, false,
		},
	}

	for _, tt := range tests {
		req, err := http.NewRequest("GET", tt.URL, nil)
		if err != nil {
			t.Errorf("http.NewRequest(%q) returned error: %v", tt.URL, err)
			continue
		}

		key, err := NewRequest(req)
		if tt.ExpectError {
			if err == nil {
				t.Errorf("NewRequest(%v) did not return expected error", req)
			}
			continue
		} else if err != nil {
			t.Errorf("NewRequest(%v) return unexpected error: %v", req, err)
			continue
		}

		if got, want := key.URL, tt.RemoteURL; got != want {
			t.Errorf("NewRequest(%q) request URL = %v, want %v", tt.URL, got, want)
		}
		if got, want := key.Options, tt.Options; got != want {
			t.Errorf("NewRequest(%q) request options = %v, want %v", tt.URL, got, want)
		}
	}
}
