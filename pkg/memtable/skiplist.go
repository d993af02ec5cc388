package memtable

import (
	"bytes"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/KevoDB/combiner/pkg/key"
)

const (
	// MaxHeight is the maximum height of the skip list
	MaxHeight = 12

	// BranchingFactor determines the probability of increasing the height
	BranchingFactor = 4
)

// entry is a versioned record. encoded is key.Encode(k) and defines the
// position of the entry in the list.
type entry struct {
	encoded []byte
	k       key.Key
	value   []byte
}

// newEntry creates a new entry that owns copies of k and value
func newEntry(k key.Key, value []byte) *entry {
	owned := k.Clone()
	var v []byte
	if value != nil {
		v = make([]byte, len(value))
		copy(v, value)
	}
	return &entry{
		encoded: key.Encode(owned),
		k:       owned,
		value:   v,
	}
}

// size returns the approximate size of the entry in memory
func (e *entry) size() int {
	return len(e.encoded) + len(e.value) + 16 // adding overhead for metadata
}

// compare compares this entry with an encoded key
func (e *entry) compare(encoded []byte) int {
	return bytes.Compare(e.encoded, encoded)
}

// node represents a node in the skip list
type node struct {
	entry  *entry
	height int32
	// next contains pointers to the next nodes at each level
	next [MaxHeight]unsafe.Pointer
}

func newNode(e *entry, height int) *node {
	return &node{
		entry:  e,
		height: int32(height),
	}
}

func (n *node) getNext(level int) *node {
	return (*node)(atomic.LoadPointer(&n.next[level]))
}

func (n *node) setNext(level int, next *node) {
	atomic.StorePointer(&n.next[level], unsafe.Pointer(next))
}

// SkipList is a concurrent skip list ordered by encoded composite keys.
// Readers never block; writers are serialized by the MemTable.
type SkipList struct {
	head      *node
	maxHeight int32
	rnd       *rand.Rand
	rndMtx    sync.Mutex
	size      int64
	count     int64
}

// NewSkipList creates a new skip list
func NewSkipList() *SkipList {
	return &SkipList{
		head:      newNode(nil, MaxHeight),
		maxHeight: 1,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SkipList) randomHeight() int {
	s.rndMtx.Lock()
	defer s.rndMtx.Unlock()

	height := 1
	for height < MaxHeight && s.rnd.Intn(BranchingFactor) == 0 {
		height++
	}
	return height
}

func (s *SkipList) getCurrentHeight() int {
	return int(atomic.LoadInt32(&s.maxHeight))
}

// Insert adds a new entry to the skip list. An entry with the same encoded
// key as an existing one is placed in front of it and shadows it.
func (s *SkipList) Insert(e *entry) {
	height := s.randomHeight()
	prev := [MaxHeight]*node{}
	n := newNode(e, height)

	currHeight := s.getCurrentHeight()
	if height > currHeight {
		if atomic.CompareAndSwapInt32(&s.maxHeight, int32(currHeight), int32(height)) {
			currHeight = height
		}
	}

	current := s.head
	for level := currHeight - 1; level >= 0; level-- {
		for next := current.getNext(level); next != nil; next = current.getNext(level) {
			if next.entry.compare(e.encoded) >= 0 {
				break
			}
			current = next
		}
		prev[level] = current
	}

	for level := 0; level < height; level++ {
		n.setNext(level, prev[level].getNext(level))
		prev[level].setNext(level, n)
	}

	atomic.AddInt64(&s.size, int64(e.size()))
	atomic.AddInt64(&s.count, 1)
}

// Find returns the entry stored under exactly k, or nil
func (s *SkipList) Find(k key.Key) *entry {
	target := key.Encode(k)
	n := s.seekNode(target)
	if n == nil || n.entry.compare(target) != 0 {
		return nil
	}
	return n.entry
}

// seekNode returns the first node whose key is >= target
func (s *SkipList) seekNode(target []byte) *node {
	current := s.head
	for level := s.getCurrentHeight() - 1; level >= 0; level-- {
		for next := current.getNext(level); next != nil; next = current.getNext(level) {
			if next.entry.compare(target) >= 0 {
				break
			}
			current = next
		}
	}
	return current.getNext(0)
}

// ApproximateSize returns the approximate size of the skip list in bytes
func (s *SkipList) ApproximateSize() int64 {
	return atomic.LoadInt64(&s.size)
}

// Len returns the number of inserted entries, shadowed ones included
func (s *SkipList) Len() int64 {
	return atomic.LoadInt64(&s.count)
}

// Iterator provides sequential access to the skip list entries. Entries
// shadowed by a later insert of the same key are skipped.
type Iterator struct {
	list    *SkipList
	current *node
}

// NewIterator creates a new, unpositioned Iterator for the skip list
func (s *SkipList) NewIterator() *Iterator {
	return &Iterator{list: s}
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.current != nil && it.current != it.list.head
}

// Next advances the iterator to the next distinct key
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	encoded := it.current.entry.encoded
	next := it.current.getNext(0)
	for next != nil && next.entry.compare(encoded) == 0 {
		next = next.getNext(0)
	}
	it.current = next
}

// SeekToFirst positions the iterator at the first entry
func (it *Iterator) SeekToFirst() {
	it.current = it.list.head.getNext(0)
}

// Seek positions the iterator at the first entry with a key >= target
func (it *Iterator) Seek(target key.Key) {
	it.current = it.list.seekNode(key.Encode(target))
}

// Key returns the key of the current entry
func (it *Iterator) Key() key.Key {
	if !it.Valid() {
		return key.Key{}
	}
	return it.current.entry.k
}

// Value returns the value of the current entry
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.current.entry.value
}

// IsTombstone returns true if the current entry is a deletion marker
func (it *Iterator) IsTombstone() bool {
	return it.Valid() && it.current.entry.k.Deleted
}

// clone returns an iterator at the same position
func (it *Iterator) clone() *Iterator {
	return &Iterator{list: it.list, current: it.current}
}
