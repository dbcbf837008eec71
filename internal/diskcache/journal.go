// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package diskcache

import (
	"bufio"
	"container/list"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// The journal is an append-only text file recording every change to the
// cache index, one operation per line:
//
//	imagecache.journal 1
//	DIRTY c0ffee...
//	CLEAN c0ffee... 1024
//	READ c0ffee...
//	REMOVE c0ffee...
//
// A DIRTY line is written before a blob is stored and is followed by CLEAN
// once the write succeeds, or by CLEAN or REMOVE if it fails.  Replaying the
// journal rebuilds recency order and sizes after a restart; a DIRTY line
// with no later CLEAN or REMOVE means the process died mid write, and the
// entry is dropped.
const (
	journalFile    = "journal"
	journalTmpFile = "journal.tmp"
	journalHeader  = "imagecache.journal 1"

	opDirty  = "DIRTY"
	opClean  = "CLEAN"
	opRead   = "READ"
	opRemove = "REMOVE"

	// compactThreshold is the number of redundant journal lines tolerated
	// before the journal is rewritten.
	compactThreshold = 2000
)

var errBadJournal = errors.New("diskcache: unreadable journal")

// readJournal replays the journal in c.dir into c's index.  A missing
// journal leaves the index empty.  A truncated final line is ignored.
func (c *diskCache) readJournal() error {
	f, err := os.Open(filepath.Join(c.dir, journalFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	c.dirty = make(map[string]bool)
	s := bufio.NewScanner(f)
	if !s.Scan() || s.Text() != journalHeader {
		return errBadJournal
	}

	lines := 0
	for s.Scan() {
		if err := c.replay(s.Text()); err != nil {
			// most likely a torn write at the tail
			break
		}
		lines++
	}
	c.redundant = lines - c.lru.Len()
	return s.Err()
}

func (c *diskCache) replay(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("malformed journal line %q", line)
	}
	op, digest := fields[0], fields[1]

	switch op {
	case opDirty:
		c.dirty[digest] = true
	case opClean:
		if len(fields) != 3 {
			return fmt.Errorf("malformed journal line %q", line)
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("malformed journal line %q", line)
		}
		if le, ok := c.entries[digest]; ok {
			c.unlink(le)
		}
		c.link(digest, size)
		delete(c.dirty, digest)
	case opRead:
		if le, ok := c.entries[digest]; ok {
			c.lru.MoveToBack(le)
		}
	case opRemove:
		if le, ok := c.entries[digest]; ok {
			c.unlink(le)
		}
		delete(c.dirty, digest)
	default:
		return fmt.Errorf("unknown journal operation %q", op)
	}
	return nil
}

// rebuildJournal writes a compacted journal holding one CLEAN line per live
// entry, in recency order, and replaces the current journal with it.
func (c *diskCache) rebuildJournal() error {
	if c.journal != nil {
		c.journal.Close()
		c.journal, c.w = nil, nil
	}

	tmp := filepath.Join(c.dir, journalTmpFile)
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, journalHeader)
	for le := c.lru.Front(); le != nil; le = le.Next() {
		e := le.Value.(*entry)
		fmt.Fprintf(w, "%s %s %d\n", opClean, e.digest, e.size)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, journalFile)); err != nil {
		return err
	}

	c.redundant = 0
	return c.openJournal()
}

func (c *diskCache) openJournal() error {
	f, err := os.OpenFile(filepath.Join(c.dir, journalFile), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	c.journal = f
	c.w = bufio.NewWriter(f)
	return nil
}

// dropUnindexed erases entries left dirty by the journal, unlinks entries
// whose blob is missing, and erases blobs the index does not know about.
func (c *diskCache) dropUnindexed() {
	for digest := range c.dirty {
		if le, ok := c.entries[digest]; ok {
			c.unlink(le)
		}
		if err := c.store.Erase(digest); err != nil {
			c.logError("error erasing %s: %v", digest, err)
		}
	}
	c.dirty = nil

	for le := c.lru.Front(); le != nil; {
		next := le.Next()
		if e := le.Value.(*entry); !c.store.Has(e.digest) {
			c.unlink(le)
		}
		le = next
	}

	keys, err := c.store.Keys()
	if err != nil {
		c.logError("error listing store: %v", err)
		return
	}
	for _, digest := range keys {
		if _, ok := c.entries[digest]; ok {
			continue
		}
		if err := c.store.Erase(digest); err != nil {
			c.logError("error erasing %s: %v", digest, err)
		}
	}
}

// appendJournal records one operation.  Lines are buffered until the next
// flush.
func (c *diskCache) appendJournal(op, digest string, size int64) {
	if c.w == nil {
		return
	}
	var err error
	if op == opClean {
		_, err = fmt.Fprintf(c.w, "%s %s %d\n", op, digest, size)
	} else {
		_, err = fmt.Fprintf(c.w, "%s %s\n", op, digest)
	}
	if err != nil {
		c.logError("error writing journal: %v", err)
	}
}

// maybeCompact rewrites the journal once redundant lines dominate it.
func (c *diskCache) maybeCompact() {
	if c.redundant < compactThreshold || c.redundant < c.lru.Len() {
		return
	}
	if err := c.flushLocked(); err != nil {
		return
	}
	if err := c.rebuildJournal(); err != nil {
		c.logError("error compacting journal: %v", err)
	}
}

func (c *diskCache) link(digest string, size int64) {
	c.entries[digest] = c.lru.PushBack(&entry{digest: digest, size: size})
	c.size += size
}

func (c *diskCache) unlink(le *list.Element) *entry {
	e := c.lru.Remove(le).(*entry)
	delete(c.entries, e.digest)
	c.size -= e.size
	return e
}
