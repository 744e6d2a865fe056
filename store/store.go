// Package store is a Pebble-backed append-only collection that serves as a
// batch.DataSource.
//
// Records are msgpack-encoded and keyed by their append index, so paging by
// offset is a single bounded seek:
//
//	<prefix>/items/<8-byte big-endian index>  -> msgpack(T)
//	<prefix>/meta/count                       -> 8-byte big-endian count
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store: closed")

// Options configures a Store.
type Options struct {
	// Dir is the Pebble data directory. Required unless InMemory is set.
	Dir string
	// InMemory keeps all data in a memory-backed filesystem.
	InMemory bool
	// Prefix namespaces the keys, so several collections can share a directory.
	Prefix string
	// Sync fsyncs the WAL on every Append.
	Sync bool
}

// Store is a persistent list of T. It is safe for concurrent use.
type Store[T any] struct {
	db        *pebble.DB
	itemsKey  []byte
	countKey  []byte
	writeOpts *pebble.WriteOptions

	mu     sync.RWMutex
	count  int
	closed bool
}

// Open creates or opens the collection described by opts.
func Open[T any](opts Options) (*Store[T], error) {
	po := &pebble.Options{}
	dir := opts.Dir
	switch {
	case opts.InMemory:
		po.FS = vfs.NewMem()
		if dir == "" {
			dir = "mem"
		}
	case dir == "":
		return nil, errors.New("store: Options.Dir is required")
	}

	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}

	s := &Store[T]{
		db:        db,
		itemsKey:  []byte(opts.Prefix + "/items/"),
		countKey:  []byte(opts.Prefix + "/meta/count"),
		writeOpts: pebble.NoSync,
	}
	if opts.Sync {
		s.writeOpts = pebble.Sync
	}

	if s.count, err = s.loadCount(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) loadCount() (int, error) {
	v, closer, err := s.db.Get(s.countKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read count: %w", err)
	}
	defer func() { _ = closer.Close() }()

	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt count key: %d bytes", len(v))
	}
	return int(binary.BigEndian.Uint64(v)), nil // #nosec G115 -- written by Append
}

func (s *Store[T]) key(index int) []byte {
	k := make([]byte, len(s.itemsKey)+8)
	copy(k, s.itemsKey)
	binary.BigEndian.PutUint64(k[len(s.itemsKey):], uint64(index)) // #nosec G115 -- index >= 0
	return k
}

// Append adds items to the end of the collection in one atomic batch.
func (s *Store[T]) Append(ctx context.Context, items ...T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()

	for i, item := range items {
		data, err := msgpack.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode item %d: %w", s.count+i, err)
		}
		if err := b.Set(s.key(s.count+i), data, nil); err != nil {
			return err
		}
	}

	next := s.count + len(items)
	var cnt [8]byte
	binary.BigEndian.PutUint64(cnt[:], uint64(next)) // #nosec G115 -- next >= 0
	if err := b.Set(s.countKey, cnt[:], nil); err != nil {
		return err
	}

	if err := b.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	s.count = next
	return nil
}

// Page returns up to limit items starting at offset, in append order.
func (s *Store[T]) Page(ctx context.Context, offset, limit int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	upper := append(append([]byte{}, s.itemsKey...), 0xFF)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: s.key(offset), UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer func() { _ = it.Close() }()

	page := make([]T, 0, min(limit, max(s.count-offset, 0)))
	for ok := it.First(); ok && len(page) < limit; ok = it.Next() {
		var v T
		if err := msgpack.Unmarshal(it.Value(), &v); err != nil {
			return nil, fmt.Errorf("decode item at %x: %w", it.Key(), err)
		}
		page = append(page, v)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return page, nil
}

// Count returns the number of items appended so far.
func (s *Store[T]) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.count, nil
}

// Close flushes and closes the underlying database.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
