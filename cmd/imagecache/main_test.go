// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/die-net/lrucache"
	"github.com/die-net/lrucache/twotier"
	"willnorris.com/go/imagecache"
	"willnorris.com/go/imagecache/internal/responsecache"
)

func TestByteSize(t *testing.T) {
	tests := []struct {
		value   string
		want    byteSize
		wantErr bool
	}{
		{"0", 0, false},
		{"1024", 1024, false},
		{"64MB", 64e6, false},
		{"64MiB", 64 << 20, false},
		{"1 GiB", 1 << 30, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		var b byteSize
		err := b.Set(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Set(%q) did not return an error", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q) returned error: %v", tt.value, err)
		} else if b != tt.want {
			t.Errorf("Set(%q) = %d, want %d", tt.value, b, tt.want)
		}
	}
}

func TestLevelFlag(t *testing.T) {
	tests := []struct {
		value   string
		want    imagecache.Level
		wantErr bool
	}{
		{"low", imagecache.Low, false},
		{"Moderate", imagecache.Moderate, false},
		{"SEVERE", imagecache.Severe, false},
		{"extreme", imagecache.None, true},
	}

	for _, tt := range tests {
		var l levelFlag
		err := l.Set(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Set(%q) did not return an error", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q) returned error: %v", tt.value, err)
		} else if imagecache.Level(l) != tt.want {
			t.Errorf("Set(%q) = %v, want %v", tt.value, imagecache.Level(l), tt.want)
		}
	}

	if got, want := trimHalve.String(), "moderate"; got != want {
		t.Errorf("default trimHalve is %q, want %q", got, want)
	}
	if got, want := trimClear.String(), "severe"; got != want {
		t.Errorf("default trimClear is %q, want %q", got, want)
	}
}

func newTestRouter(t *testing.T) (http.Handler, *imagecache.Cache) {
	t.Helper()
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cache, err := imagecache.Open(imagecache.Config{MemorySize: 1 << 20, PoolSize: 1 << 20})
	if err != nil {
		t.Fatalf("imagecache.Open returned error: %v", err)
	}
	loader := &imagecache.Loader{
		Cache:   cache,
		Fetcher: imagecache.FileFetcher{Root: dir},
		Decoder: imagecache.ImageDecoder{Pool: cache},
	}
	return newRouter(cache, &imagecache.Server{Loader: loader}), cache
}

func TestRouter(t *testing.T) {
	r, cache := newTestRouter(t)

	tests := []struct {
		method, url string
		code        int
	}{
		// the double slash survives routing
		{"GET", "/x/file:///a.png", http.StatusOK},
		{"GET", "//file:///a.png", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"POST", "/trim?level=bogus", http.StatusBadRequest},
		{"POST", "/trim?level=low", http.StatusOK},
		{"GET", "/x/file:///missing.png", http.StatusNotFound},
	}

	for _, tt := range tests {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tt.method, tt.url, nil))
		if resp.Code != tt.code {
			t.Errorf("%s %s returned status %d, want %d", tt.method, tt.url, resp.Code, tt.code)
		}
	}

	if cache.Size() == 0 {
		t.Fatalf("served image is not cached")
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest("POST", "/trim?level=severe", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("trim returned status %d", resp.Code)
	}
	if got := cache.Size(); got != 0 {
		t.Errorf("severe trim left %d bytes in memory", got)
	}
}

func TestResponseCache(t *testing.T) {
	if c, disk := responseCache(0, "", time.Hour); c != nil || disk != nil {
		t.Errorf("responseCache with nothing configured returned %T, %v", c, disk)
	}

	if c, disk := responseCache(1<<20, "", time.Hour); disk != nil {
		t.Errorf("memory only responseCache returned a disk cache")
	} else if _, ok := c.(*lrucache.LruCache); !ok {
		t.Errorf("memory only responseCache returned %T", c)
	}

	if c, disk := responseCache(0, t.TempDir(), time.Hour); disk == nil {
		t.Errorf("disk only responseCache returned no disk cache")
	} else if _, ok := c.(*responsecache.Cache); !ok {
		t.Errorf("disk only responseCache returned %T", c)
	}

	c, disk := responseCache(1<<20, t.TempDir(), time.Hour)
	if _, ok := c.(*twotier.TwoTier); !ok {
		t.Fatalf("tiered responseCache returned %T", c)
	}
	c.Set("http://example.com/a.png", []byte("response"))
	if got, ok := disk.Get("http://example.com/a.png"); !ok || string(got) != "response" {
		t.Errorf("tiered responseCache did not write through to disk: %q, %t", got, ok)
	}
}
