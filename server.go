// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"willnorris.com/go/imagecache/data"
)

// Server serves cached images over HTTP.  GET requests load the image for
// "/{options}/{url}" and respond with it PNG-encoded.  DELETE requests remove
// it from the cache.
//
// Note that a Server should not be run behind a http.ServeMux, since the
// ServeMux aggressively cleans URLs and removes the double slash in the
// embedded request URL.
type Server struct {
	Loader *Loader

	// Verbose logs every request.
	Verbose bool
}

// ServeHTTP handles image requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/favicon.ico" {
		return // ignore favicon requests
	}

	start := time.Now()
	defer func() {
		httpRequestsResponseTime.Observe(time.Since(start).Seconds())
	}()

	key, err := NewRequest(r)
	if err != nil {
		msg := fmt.Sprintf("invalid request URL: %v", err)
		log.Print(msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.serveImage(w, r, key)
	case http.MethodDelete:
		if !s.Loader.Cache.Remove(key) {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, HEAD, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request, key data.Key) {
	b, err := s.Loader.Load(r.Context(), key)
	if err != nil {
		msg := fmt.Sprintf("error loading image: %v", err)
		log.Print(msg)
		status := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		http.Error(w, msg, status)
		return
	}
	// the response is encoded from b, after which nothing displays it
	defer s.Loader.Cache.SetValid(b, false)

	if s.Verbose {
		log.Printf("request: %v (%dx%d)", key, b.Width(), b.Height())
	}

	w.Header().Set("Content-Type", "image/png")
	if r.Method == http.MethodHead {
		return
	}
	if err := imaging.Encode(w, b.Image(), imaging.PNG); err != nil {
		log.Printf("error encoding response for %v: %v", key, err)
	}
}
