package iterator

import (
	"github.com/KevoDB/combiner/pkg/key"
)

// SortedSource defines the interface for iterating over versioned records in
// composite-key order. Storage components produce it and transformation
// stages both consume and implement it, so stages can be layered on top of
// each other transparently.
//
// A SortedSource is not safe for concurrent use. Keys and values returned by
// Key and Value are only valid until the next call to Next or Seek; callers
// that need to retain them must copy.
type SortedSource interface {
	// Valid returns true if the source is positioned at a record
	Valid() bool

	// Key returns the key of the current record
	Key() key.Key

	// Value returns the value of the current record
	Value() []byte

	// Next advances to the next record
	Next() error

	// Seek positions the source at the first record inside r. When inclusive
	// is true only records whose family is listed in families are returned,
	// otherwise records whose family is listed are skipped. An empty,
	// non-inclusive family list returns every family.
	Seek(r key.Range, families [][]byte, inclusive bool) error

	// Duplicate returns an independent source positioned identically.
	// Advancing either copy must not affect the other.
	Duplicate() SortedSource
}

// Record is a detached key/value pair that owns its memory
type Record struct {
	Key   key.Key
	Value []byte
}

// CurrentRecord copies the current record of src. It returns false when src
// is not positioned.
func CurrentRecord(src SortedSource) (Record, bool) {
	if !src.Valid() {
		return Record{}, false
	}
	v := src.Value()
	value := make([]byte, len(v))
	copy(value, v)
	return Record{Key: src.Key().Clone(), Value: value}, true
}
