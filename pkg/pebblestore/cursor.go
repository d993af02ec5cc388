package pebblestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KevoDB/combiner/pkg/common/iterator/bounded"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/cockroachdb/pebble"
)

// sharedSnapshot is released when the last cursor reading it closes
type sharedSnapshot struct {
	mu   sync.Mutex
	snap *pebble.Snapshot
	refs int
}

func (s *sharedSnapshot) acquire() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

func (s *sharedSnapshot) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		return s.snap.Close()
	}
	return nil
}

// cursor implements bounded.Cursor over a Pebble iterator
type cursor struct {
	store *Store
	snap  *sharedSnapshot
	iter  *pebble.Iterator

	// Decoded current record
	k     key.Key
	value []byte
	valid bool

	closed bool
}

func (c *cursor) First() error {
	return c.load(c.iter.First())
}

func (c *cursor) SeekGE(target key.Key) error {
	return c.load(c.iter.SeekGE(key.Encode(target)))
}

func (c *cursor) Next() error {
	if !c.valid {
		return nil
	}
	return c.load(c.iter.Next())
}

// load decodes the record the iterator was just moved to
func (c *cursor) load(ok bool) error {
	c.valid = false
	c.value = nil
	if !ok {
		return c.iter.Error()
	}

	k, err := key.Decode(c.iter.Key())
	if err != nil {
		return fmt.Errorf("stored key %x: %w", c.iter.Key(), err)
	}
	value, err := c.iter.ValueAndErr()
	if err != nil {
		return err
	}

	c.k = k
	if !k.Deleted {
		c.value = value
	}
	c.valid = true
	return nil
}

func (c *cursor) Valid() bool {
	return c.valid
}

func (c *cursor) Key() key.Key {
	return c.k
}

func (c *cursor) Value() []byte {
	return c.value
}

// Clone opens a second iterator over the same snapshot and positions it at
// the current record
func (c *cursor) Clone() (bounded.Cursor, error) {
	if c.closed {
		return nil, ErrClosed
	}
	iter, err := c.iter.Clone(pebble.CloneOptions{})
	if err != nil {
		return nil, err
	}
	c.snap.acquire()

	clone := &cursor{store: c.store, snap: c.snap, iter: iter}
	c.store.track(clone)

	if c.valid {
		err = clone.SeekGE(c.k)
	}
	if err != nil {
		return nil, errors.Join(err, clone.Close())
	}
	return clone, nil
}

// Close releases the iterator and its share of the snapshot
func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.valid = false
	c.store.untrack(c)
	return errors.Join(c.iter.Close(), c.snap.release())
}

var _ bounded.Cursor = (*cursor)(nil)
