package memtable

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/iterator/bounded"
	"github.com/KevoDB/combiner/pkg/key"
)

// ErrImmutable is returned when writing to a MemTable that has been frozen
var ErrImmutable = errors.New("memtable is immutable")

// MemTable is an in-memory table of versioned records backed by a skip list.
// Writes are serialized; sources read without locking.
type MemTable struct {
	skipList     *SkipList
	maxVersion   uint64
	creationTime time.Time
	immutable    atomic.Bool
	mu           sync.Mutex
}

// NewMemTable creates a new memory table
func NewMemTable() *MemTable {
	return &MemTable{
		skipList:     NewSkipList(),
		creationTime: time.Now(),
	}
}

// Put stores value under k. Writing the exact same key again replaces the
// earlier value.
func (m *MemTable) Put(k key.Key, value []byte) error {
	k.Deleted = false
	return m.insert(k, value)
}

// Delete writes a deletion marker for k. The marker hides every version of
// the same column that is not newer than k.
func (m *MemTable) Delete(k key.Key) error {
	k.Deleted = true
	return m.insert(k, nil)
}

// Apply inserts a record as-is, preserving its deletion flag
func (m *MemTable) Apply(rec iterator.Record) error {
	return m.insert(rec.Key, rec.Value)
}

func (m *MemTable) insert(k key.Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsImmutable() {
		return ErrImmutable
	}

	m.skipList.Insert(newEntry(k, value))
	if k.Version > m.maxVersion {
		m.maxVersion = k.Version
	}
	return nil
}

// Get returns the value stored under exactly k. The second result is false
// if no record with that key exists.
func (m *MemTable) Get(k key.Key) ([]byte, bool) {
	e := m.skipList.Find(k)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// MaxVersion returns the highest version written so far
func (m *MemTable) MaxVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxVersion
}

// Len returns the number of records written, replaced ones included
func (m *MemTable) Len() int64 {
	return m.skipList.Len()
}

// ApproximateSize returns the approximate size of the MemTable in bytes
func (m *MemTable) ApproximateSize() int64 {
	return m.skipList.ApproximateSize()
}

// SetImmutable marks the MemTable as immutable
func (m *MemTable) SetImmutable() {
	m.immutable.Store(true)
}

// IsImmutable returns whether the MemTable is immutable
func (m *MemTable) IsImmutable() bool {
	return m.immutable.Load()
}

// Age returns the age of the MemTable in seconds
func (m *MemTable) Age() float64 {
	return time.Since(m.creationTime).Seconds()
}

// NewSource returns an unpositioned sorted source over the MemTable.
// Records written after the source is created may or may not be observed.
func (m *MemTable) NewSource() *bounded.Source {
	return bounded.NewSource(NewCursorAdapter(m.skipList.NewIterator()))
}
