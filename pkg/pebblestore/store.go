// Package pebblestore keeps versioned records in a Pebble database and
// exposes them as sorted sources. Keys are stored in their order-preserving
// encoding so Pebble's byte order is the composite key order.
package pebblestore

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/iterator/bounded"
	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var (
	// ErrClosed is returned when using a store after Close
	ErrClosed = errors.New("store is closed")

	// ErrNoDirectory is returned when an on-disk store is opened without a directory
	ErrNoDirectory = errors.New("on-disk store requires a directory")
)

const dataDirname = "records"

// Options configures a Store
type Options struct {
	// Dir is the root directory of an on-disk store
	Dir string

	// InMemory keeps the database in a memory-backed file system
	InMemory bool

	// Sync makes every write durable before it returns
	Sync bool

	// Logger receives Pebble's own log output at debug level
	Logger log.Logger
}

// Store is a Pebble-backed table of versioned records
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	logger    log.Logger

	mu      sync.Mutex
	closed  bool
	cursors map[*cursor]struct{}
}

// Open opens or creates a store
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithField("component", "pebblestore")

	var (
		fs  vfs.FS
		dir string
	)
	if opts.InMemory {
		fs = vfs.NewMem()
		dir = dataDirname
	} else {
		if opts.Dir == "" {
			return nil, ErrNoDirectory
		}
		fs = vfs.Default
		dir = filepath.Join(opts.Dir, dataDirname)
	}

	db, err := pebble.Open(dir, &pebble.Options{
		FS:     fs,
		Logger: pebbleLogger{logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database at %s: %w", dir, err)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	logger.Info("Opened record store at %s (in-memory: %t)", dir, opts.InMemory)
	return &Store{
		db:        db,
		writeOpts: writeOpts,
		logger:    logger,
		cursors:   make(map[*cursor]struct{}),
	}, nil
}

// Put stores value under k
func (s *Store) Put(k key.Key, value []byte) error {
	k.Deleted = false
	return s.Apply(iterator.Record{Key: k, Value: value})
}

// Delete writes a deletion marker for k. Older versions stay in the store
// and are hidden by readers that honor markers.
func (s *Store) Delete(k key.Key) error {
	k.Deleted = true
	return s.Apply(iterator.Record{Key: k})
}

// Apply writes a record as-is, preserving its deletion flag
func (s *Store) Apply(rec iterator.Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Set(key.Encode(rec.Key), storedValue(rec), s.writeOpts)
}

// ApplyBatch writes records atomically
func (s *Store) ApplyBatch(records []iterator.Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, rec := range records {
		if err := batch.Set(key.Encode(rec.Key), storedValue(rec), nil); err != nil {
			return err
		}
	}
	return batch.Commit(s.writeOpts)
}

func storedValue(rec iterator.Record) []byte {
	if rec.Key.Deleted {
		return nil
	}
	return rec.Value
}

// NewSource returns an unpositioned source over a consistent snapshot of the
// store. The source and its duplicates must be closed before the store.
func (s *Store) NewSource() (*bounded.Source, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	snap := &sharedSnapshot{snap: s.db.NewSnapshot(), refs: 1}
	iter, err := snap.snap.NewIter(nil)
	if err != nil {
		snap.release()
		return nil, err
	}

	c := &cursor{store: s, snap: snap, iter: iter}
	s.track(c)
	return bounded.NewSource(c), nil
}

// Flush writes the memtable to disk
func (s *Store) Flush() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Flush()
}

// Close closes any source left open and then the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	leaked := make([]*cursor, 0, len(s.cursors))
	for c := range s.cursors {
		leaked = append(leaked, c)
	}
	s.mu.Unlock()

	var errs []error
	if len(leaked) > 0 {
		s.logger.Warn("Closing %d sources left open", len(leaked))
	}
	for _, c := range leaked {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) track(c *cursor) {
	s.mu.Lock()
	s.cursors[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Store) untrack(c *cursor) {
	s.mu.Lock()
	delete(s.cursors, c)
	s.mu.Unlock()
}

// pebbleLogger forwards Pebble's log output to a Logger
type pebbleLogger struct {
	l log.Logger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(format, args...)
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(format, args...)
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(format, args...)
}
