// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package diskcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/peterbourgon/diskv"
)

// ErrNotFound is returned by a Store when no blob exists for a digest.
var ErrNotFound = errors.New("diskcache: blob not found")

// A Store holds encoded blobs addressed by key digest.  It does no size or
// recency bookkeeping of its own; the cache journal does that.
type Store interface {
	Read(digest string) ([]byte, error)

	// Write stores value under digest.  A failed write must not leave a
	// partial blob readable under digest.
	Write(digest string, value []byte) error

	Erase(digest string) error
	EraseAll() error
	Has(digest string) bool

	// Keys returns the digest of every stored blob.
	Keys() ([]string, error)

	// Sync forces buffered writes to stable storage.
	Sync() error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	// Diskv stores one file per blob using github.com/peterbourgon/diskv.
	Diskv Backend = "diskv"

	// Badger stores blobs in a github.com/dgraph-io/badger database.
	Badger Backend = "badger"
)

// ParseBackend parses a backend name.  The empty string selects Diskv.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case "":
		return Diskv, nil
	case Diskv, Badger:
		return b, nil
	}
	return "", fmt.Errorf("unknown disk cache backend %q", s)
}

// Subdirectories of the cache directory owned by each backend.
const (
	blobsDir  = "blobs"
	tmpDir    = "tmp"
	badgerDir = "badger"
)

func openStore(b Backend, dir string) (Store, error) {
	switch b {
	case Diskv, "":
		return newDiskvStore(filepath.Join(dir, blobsDir), filepath.Join(dir, tmpDir)), nil
	case Badger:
		return newBadgerStore(filepath.Join(dir, badgerDir))
	}
	return nil, fmt.Errorf("unknown disk cache backend %q", b)
}

type diskvStore struct {
	d *diskv.Diskv
}

func newDiskvStore(basePath, tempDir string) *diskvStore {
	return &diskvStore{d: diskv.New(diskv.Options{
		BasePath:  basePath,
		TempDir:   tempDir,
		Transform: shard,
	})}
}

// shard stores file "c0ffee" as "c0/ff/c0ffee".
func shard(digest string) []string {
	if len(digest) < 4 {
		return nil
	}
	return []string{digest[0:2], digest[2:4]}
}

// BlobPath returns the file holding the blob for digest in a Diskv backed
// cache rooted at dir.
func BlobPath(dir, digest string) string {
	elem := append([]string{dir, blobsDir}, shard(digest)...)
	return filepath.Join(append(elem, digest)...)
}

func (s *diskvStore) Read(digest string) ([]byte, error) {
	v, err := s.d.Read(digest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *diskvStore) Write(digest string, value []byte) error {
	return s.d.Write(digest, value)
}

func (s *diskvStore) Erase(digest string) error {
	if err := s.d.Erase(digest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *diskvStore) EraseAll() error {
	if err := s.d.EraseAll(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *diskvStore) Has(digest string) bool { return s.d.Has(digest) }

func (s *diskvStore) Keys() ([]string, error) {
	var keys []string
	for k := range s.d.Keys(nil) {
		keys = append(keys, k)
	}
	return keys, nil
}

// diskv completes each write with a rename of a closed file, so there is
// nothing left to sync.
func (s *diskvStore) Sync() error  { return nil }
func (s *diskvStore) Close() error { return nil }

type badgerStore struct {
	db *badger.DB
}

func newBadgerStore(path string) (*badgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Read(digest string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(digest))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *badgerStore) Write(digest string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(digest), value)
	})
}

func (s *badgerStore) Erase(digest string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(digest))
	})
}

func (s *badgerStore) EraseAll() error { return s.db.DropAll() }

func (s *badgerStore) Has(digest string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(digest))
		return err
	})
	return err == nil
}

func (s *badgerStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (s *badgerStore) Sync() error  { return s.db.Sync() }
func (s *badgerStore) Close() error { return s.db.Close() }
