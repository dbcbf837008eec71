// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// imagecache starts an HTTP server that serves decoded images through a
// memory and disk cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/die-net/lrucache"
	"github.com/die-net/lrucache/twotier"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/gregjones/httpcache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"willnorris.com/go/imagecache"
	"willnorris.com/go/imagecache/internal/responsecache"
	"willnorris.com/go/imagecache/third_party/envy"
)

var addr = flag.String("addr", "localhost:8080", "TCP address to listen on")
var diskDir = flag.String("disk", "", "directory of the disk cache; empty disables it")
var diskBackend = flag.String("diskBackend", "diskv", "disk cache storage backend: diskv or badger")
var root = flag.String("root", ".", "directory file URLs are resolved against")
var strict = flag.Bool("strict", false, "panic on buffer reference counting errors instead of logging them")
var verbose = flag.Bool("verbose", false, "print verbose logging messages")
var userAgent = flag.String("userAgent", "imagecache", "user-agent used when fetching remote images")
var httpCacheDir = flag.String("httpCacheDir", "", "directory of the on-disk cache of remote HTTP responses; empty disables it")
var timeout = flag.Duration("timeout", 30*time.Second, "time limit for fetching a remote image; zero disables it")
var httpCacheTTL = flag.Duration("httpCacheTTL", 24*time.Hour, "time responses are kept in the on-disk HTTP response cache")

var (
	memorySize    = byteSize(64 << 20)
	poolSize      = byteSize(16 << 20)
	diskSize      = byteSize(512 << 20)
	httpCacheSize = byteSize(16 << 20)
	heapLimit     byteSize

	trimHalve = levelFlag(imagecache.DefaultThresholds.Halve)
	trimClear = levelFlag(imagecache.DefaultThresholds.Clear)
)

func init() {
	flag.Var(&memorySize, "memory", "size of the memory cache of decoded images")
	flag.Var(&poolSize, "pool", "size of the pool of recycled buffers")
	flag.Var(&diskSize, "diskSize", "size of the disk cache")
	flag.Var(&httpCacheSize, "httpCache", "size of the in-memory cache of remote HTTP responses")
	flag.Var(&heapLimit, "heapLimit", "heap size at which caches are trimmed; zero disables trimming")
	flag.Var(&trimHalve, "trimHalve", "pressure level at which the memory cache is halved")
	flag.Var(&trimClear, "trimClear", "pressure level at which the memory cache and buffer pool are emptied")
}

func main() {
	if err := envy.Parse("IMAGECACHE"); err != nil {
		log.Fatal(err)
	}
	flag.Parse()

	cfg := imagecache.Config{
		MemorySize:  int64(memorySize),
		PoolSize:    int64(poolSize),
		DiskDir:     *diskDir,
		DiskBackend: *diskBackend,
		Strict:      *strict,
		Verbose:     *verbose,
		TrimThresholds: imagecache.Thresholds{
			Halve: imagecache.Level(trimHalve),
			Clear: imagecache.Level(trimClear),
		},
	}
	if *diskDir != "" {
		cfg.DiskSize = int64(diskSize)
	}
	cache, err := imagecache.Open(cfg)
	if err != nil {
		log.Fatalf("error opening cache: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	respCache, diskResponses := responseCache(int64(httpCacheSize), *httpCacheDir, *httpCacheTTL)
	if diskResponses != nil {
		go cleanupResponses(ctx, diskResponses, time.Hour)
	}

	httpFetcher := imagecache.NewHTTPFetcher(respCache)
	httpFetcher.UserAgent = *userAgent
	fileFetcher := imagecache.FileFetcher{Root: *root}
	loader := &imagecache.Loader{
		Cache: cache,
		Fetcher: imagecache.MultiFetcher{
			"http":  httpFetcher,
			"https": httpFetcher,
			"file":  fileFetcher,
			"":      fileFetcher,
		},
		Decoder: imagecache.ImageDecoder{Pool: cache},
		Timeout: *timeout,
		Verbose: *verbose,
	}

	if heapLimit > 0 {
		go imagecache.WatchPressure(ctx, uint64(heapLimit), time.Second, cache.Trim)
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: newRouter(cache, &imagecache.Server{Loader: loader, Verbose: *verbose}),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			log.Printf("error shutting down server: %v", err)
		}
	}()

	fmt.Printf("imagecache listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	if err := cache.Close(); err != nil {
		log.Fatalf("error closing cache: %v", err)
	}
}

// responseCache builds the cache of remote HTTP responses.  A memory cache of
// size bytes sits in front of an on-disk cache in dir when both are set.  The
// on-disk cache, if any, is also returned.
func responseCache(size int64, dir string, ttl time.Duration) (httpcache.Cache, *responsecache.Cache) {
	var mem, disk httpcache.Cache
	if size > 0 {
		mem = lrucache.New(size, 0)
	}
	var rc *responsecache.Cache
	if dir != "" {
		rc = responsecache.New(dir, ttl)
		disk = rc
	}

	switch {
	case mem != nil && disk != nil:
		return twotier.New(mem, disk), rc
	case mem != nil:
		return mem, nil
	case disk != nil:
		return disk, rc
	}
	return nil, nil
}

// cleanupResponses removes expired responses from c every interval until ctx
// is done.
func cleanupResponses(ctx context.Context, c *responsecache.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpired()
		}
	}
}

// newRouter routes image requests to s.  The router must not clean paths,
// since that would collapse the double slash in embedded remote URLs.
func newRouter(cache *imagecache.Cache, s http.Handler) *mux.Router {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/trim", trimHandler(cache)).Methods(http.MethodPost)
	r.PathPrefix("/").Handler(s)
	return r
}

// trimHandler trims the cache at the pressure level named by the "level"
// form value.
func trimHandler(cache *imagecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level, err := imagecache.ParseLevel(r.FormValue("level"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cache.Trim(level)
		fmt.Fprintf(w, "trimmed at %v: %s of %s in memory\n", level,
			humanize.Bytes(uint64(cache.Size())), humanize.Bytes(uint64(cache.MaxSize())))
	}
}

// byteSize is a flag.Value holding a size in bytes.  It accepts sizes such
// as "64MB" or "1GiB".
type byteSize uint64

func (b *byteSize) String() string {
	return humanize.IBytes(uint64(*b))
}

func (b *byteSize) Set(value string) error {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return err
	}
	*b = byteSize(n)
	return nil
}

// levelFlag is a flag.Value holding a pressure level name such as "low".
type levelFlag imagecache.Level

func (l *levelFlag) String() string {
	return imagecache.Level(*l).String()
}

func (l *levelFlag) Set(value string) error {
	level, err := imagecache.ParseLevel(value)
	if err != nil {
		return err
	}
	*l = levelFlag(level)
	return nil
}
