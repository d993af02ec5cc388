package memtable

import (
	"github.com/KevoDB/combiner/pkg/common/iterator/bounded"
	"github.com/KevoDB/combiner/pkg/key"
)

// CursorAdapter adapts a skip list Iterator to the bounded.Cursor interface
type CursorAdapter struct {
	iter *Iterator
}

// NewCursorAdapter creates a new adapter for a skip list iterator
func NewCursorAdapter(iter *Iterator) *CursorAdapter {
	return &CursorAdapter{iter: iter}
}

// First positions the cursor at the first record
func (a *CursorAdapter) First() error {
	a.iter.SeekToFirst()
	return nil
}

// SeekGE positions the cursor at the first record >= target
func (a *CursorAdapter) SeekGE(target key.Key) error {
	a.iter.Seek(target)
	return nil
}

// Next advances the cursor to the next record
func (a *CursorAdapter) Next() error {
	a.iter.Next()
	return nil
}

// Valid returns true if the cursor is positioned at a valid record
func (a *CursorAdapter) Valid() bool {
	return a.iter != nil && a.iter.Valid()
}

// Key returns the current key. It must not be modified.
func (a *CursorAdapter) Key() key.Key {
	return a.iter.Key()
}

// Value returns the current value. Deletion markers have a nil value.
func (a *CursorAdapter) Value() []byte {
	if a.iter.IsTombstone() {
		return nil
	}
	return a.iter.Value()
}

// Clone returns an adapter over an iterator at the same position
func (a *CursorAdapter) Clone() (bounded.Cursor, error) {
	return &CursorAdapter{iter: a.iter.clone()}, nil
}
