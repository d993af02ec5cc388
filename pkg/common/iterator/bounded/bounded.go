package bounded

import (
	"io"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/iterator/filtered"
	"github.com/KevoDB/combiner/pkg/key"
)

// Cursor is the raw ordered access a storage structure provides. It knows
// nothing about ranges or family filters.
type Cursor interface {
	// First positions the cursor at the smallest key
	First() error

	// SeekGE positions the cursor at the first key >= target
	SeekGE(target key.Key) error

	// Next advances the cursor
	Next() error

	// Valid returns true if the cursor is positioned at a record
	Valid() bool

	// Key returns the current key
	Key() key.Key

	// Value returns the current value
	Value() []byte

	// Clone returns an independent cursor at the same position
	Clone() (Cursor, error)
}

// Source wraps a Cursor and limits it to the range and column families of
// the last Seek. It implements iterator.SortedSource.
type Source struct {
	cursor   Cursor
	rng      key.Range
	families *filtered.FamilyFilter
	valid    bool

	// err is sticky; it is set when Duplicate could not clone the cursor
	err error
}

// NewSource creates a new bounded source. It is unpositioned until Seek.
func NewSource(cursor Cursor) *Source {
	return &Source{cursor: cursor, rng: key.AllRange()}
}

// Seek positions the source at the first record inside r that passes the
// family filter
func (s *Source) Seek(r key.Range, families [][]byte, inclusive bool) error {
	if s.err != nil {
		return s.err
	}

	s.valid = false
	s.rng = key.NewRange(r.Start, r.StartInclusive, r.End, r.EndInclusive)
	s.families = filtered.NewFamilyFilter(families, inclusive)

	var err error
	if r.Start != nil {
		err = s.cursor.SeekGE(*r.Start)
	} else {
		err = s.cursor.First()
	}
	if err != nil {
		return err
	}
	return s.settle()
}

// Next advances to the next record within bounds
func (s *Source) Next() error {
	if s.err != nil {
		return s.err
	}
	if !s.valid {
		return nil
	}
	if err := s.cursor.Next(); err != nil {
		s.valid = false
		return err
	}
	return s.settle()
}

// Valid returns true if the source is positioned at a record within bounds
func (s *Source) Valid() bool {
	return s.valid
}

// Key returns the current key if within bounds
func (s *Source) Key() key.Key {
	if !s.valid {
		return key.Key{}
	}
	return s.cursor.Key()
}

// Value returns the current value if within bounds
func (s *Source) Value() []byte {
	if !s.valid {
		return nil
	}
	return s.cursor.Value()
}

// Duplicate returns an independent source positioned identically. If the
// cursor cannot be cloned, the duplicate reports the failure from Seek and Next.
func (s *Source) Duplicate() iterator.SortedSource {
	dup := &Source{
		rng:      key.NewRange(s.rng.Start, s.rng.StartInclusive, s.rng.End, s.rng.EndInclusive),
		families: filtered.NewFamilyFilter(s.families.Families(), s.families.Inclusive()),
		valid:    s.valid,
		err:      s.err,
	}
	if s.err != nil {
		return dup
	}
	cursor, err := s.cursor.Clone()
	if err != nil {
		dup.valid = false
		dup.err = err
		return dup
	}
	dup.cursor = cursor
	return dup
}

// Close releases the cursor if it holds resources
func (s *Source) Close() error {
	s.valid = false
	if c, ok := s.cursor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// settle moves the cursor forward to the first record that satisfies the
// bounds, or marks the source exhausted once the end bound is crossed
func (s *Source) settle() error {
	for s.cursor.Valid() {
		k := s.cursor.Key()
		if s.rng.AfterEndKey(k) {
			s.valid = false
			return nil
		}
		if !s.rng.BeforeStartKey(k) && s.families.Accept(k.Family) {
			s.valid = true
			return nil
		}
		if err := s.cursor.Next(); err != nil {
			s.valid = false
			return err
		}
	}
	s.valid = false
	return nil
}
