// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// countingFetcher wraps a Fetcher and counts calls.
type countingFetcher struct {
	Fetcher
	calls int
}

func (f *countingFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	f.calls++
	return f.Fetcher.Fetch(ctx, u)
}

func newTestServer(t *testing.T) (*Server, *testCache, *countingFetcher) {
	t.Helper()
	dir := t.TempDir()
	raw := encodePNG(t, newTestBuffer(unit, 3))
	if err := os.WriteFile(filepath.Join(dir, "a.png"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCache(t, 1<<20)
	f := &countingFetcher{Fetcher: FileFetcher{Root: dir}}
	l := &Loader{Cache: c.Cache, Fetcher: f, Decoder: ImageDecoder{Pool: c.Cache}}
	return &Server{Loader: l}, c, f
}

func TestServer_Get(t *testing.T) {
	s, c, f := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		s.ServeHTTP(resp, httptest.NewRequest("GET", "/x/file:///a.png", nil))

		if got, want := resp.Code, http.StatusOK; got != want {
			t.Fatalf("ServeHTTP returned status %d, want %d", got, want)
		}
		if got, want := resp.Header().Get("Content-Type"), "image/png"; got != want {
			t.Errorf("ServeHTTP returned Content-Type %q, want %q", got, want)
		}
		m, err := png.Decode(resp.Body)
		if err != nil {
			t.Fatalf("response is not a png: %v", err)
		}
		if got := m.Bounds().Size(); got.X != unit.Width || got.Y != unit.Height {
			t.Errorf("response image size %v, want %v", got, unit)
		}
	}

	if f.calls != 1 {
		t.Errorf("Fetch called %d times, want 1", f.calls)
	}

	// the served buffer is released once the response is written
	v, ok := c.mem.Get(key("file:///a.png"))
	if !ok {
		t.Fatalf("served image is not held in memory")
	}
	if c.counter.IsValid(v.Buffer) {
		t.Errorf("served buffer is still marked valid")
	}
}

func TestServer_Head(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("HEAD", "/x/file:///a.png", nil))
	if got, want := resp.Code, http.StatusOK; got != want {
		t.Errorf("ServeHTTP returned status %d, want %d", got, want)
	}
	if resp.Body.Len() != 0 {
		t.Errorf("HEAD response has a %d byte body", resp.Body.Len())
	}
}

func TestServer_Delete(t *testing.T) {
	s, c, _ := newTestServer(t)

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "/x/file:///a.png", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("GET returned status %d", resp.Code)
	}

	for _, want := range []int{http.StatusNoContent, http.StatusNotFound} {
		resp := httptest.NewRecorder()
		s.ServeHTTP(resp, httptest.NewRequest("DELETE", "/x/file:///a.png", nil))
		if resp.Code != want {
			t.Errorf("DELETE returned status %d, want %d", resp.Code, want)
		}
	}
	if c.Size() != 0 {
		t.Errorf("memory still holds %d bytes after DELETE", c.Size())
	}
}

func TestServer_Errors(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		method, url string
		code        int
	}{
		{"GET", "/favicon.ico", http.StatusOK},
		{"GET", "/", http.StatusBadRequest},
		{"GET", "/x/ftp://example.com/a.png", http.StatusBadRequest},
		{"GET", "/x/file:///missing.png", http.StatusNotFound},
		{"POST", "/x/file:///a.png", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		resp := httptest.NewRecorder()
		s.ServeHTTP(resp, httptest.NewRequest(tt.method, tt.url, nil))
		if resp.Code != tt.code {
			t.Errorf("%s %s returned status %d, want %d", tt.method, tt.url, resp.Code, tt.code)
		}
	}
}
