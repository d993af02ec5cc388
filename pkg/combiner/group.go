package combiner

import (
	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/key"
)

// Entry is one record of a group as seen by a Reducer: the secondary key
// and value of a source record. It owns its memory.
type Entry struct {
	Qualifier  []byte
	Visibility []byte
	Value      []byte
}

// GroupIterator walks the records that share the primary key (row and
// family) of its anchor. It stops at the first record of another primary key
// and at the first deletion marker.
//
// Next advances the underlying source, so a GroupIterator must not be used
// after the Reducer it was handed to returns.
type GroupIterator struct {
	source  iterator.SortedSource
	anchor  *key.Key
	hasNext bool

	// consumed counts records returned by Next
	consumed int

	// err holds the first error returned by the source
	err error
}

// newGroupIterator builds a group over source anchored at anchor. anchor
// must be a copy the source cannot mutate.
func newGroupIterator(source iterator.SortedSource, anchor *key.Key) *GroupIterator {
	g := &GroupIterator{source: source, anchor: anchor}
	g.hasNext = g.computeHasNext()
	return g
}

func (g *GroupIterator) computeHasNext() bool {
	if !g.source.Valid() {
		return false
	}
	k := g.source.Key()
	return !k.Deleted && k.EqualPartial(*g.anchor, key.RowFamily)
}

// HasNext returns true if another record of the group is available
func (g *GroupIterator) HasNext() bool {
	return g.hasNext
}

// Next returns the current record of the group and advances the source.
// It returns ErrExhausted once HasNext is false, and the source's error
// unchanged if advancing fails.
func (g *GroupIterator) Next() (Entry, error) {
	if g.err != nil {
		return Entry{}, g.err
	}
	if !g.hasNext {
		return Entry{}, ErrExhausted
	}

	k := g.source.Key()
	e := Entry{
		Qualifier:  cloneBytes(k.Qualifier),
		Visibility: cloneBytes(k.Visibility),
		Value:      cloneBytes(g.source.Value()),
	}
	g.consumed++

	if err := g.source.Next(); err != nil {
		g.err = err
		g.hasNext = false
		return Entry{}, err
	}
	g.hasNext = g.computeHasNext()
	return e, nil
}

// Anchor returns the key of the newest record of the group. It is only
// valid until the Reducer returns.
func (g *GroupIterator) Anchor() key.Key {
	return *g.anchor
}

// drain consumes every remaining record of the group and returns how many
// were skipped
func (g *GroupIterator) drain() (int, error) {
	skipped := 0
	for g.hasNext {
		if _, err := g.Next(); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, g.err
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
