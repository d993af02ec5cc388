package memtable

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/KevoDB/combiner/pkg/key"
)

func TestMemTableBasicOperations(t *testing.T) {
	mt := NewMemTable()

	k := key.New("row1", "f", "q", "", 1)
	if err := mt.Put(k, []byte("value1")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	value, found := mt.Get(k)
	if !found {
		t.Fatalf("expected to find row1, but got not found")
	}
	if string(value) != "value1" {
		t.Errorf("expected value1, got %s", string(value))
	}

	if _, found := mt.Get(key.New("nonexistent", "f", "q", "", 1)); found {
		t.Errorf("expected key 'nonexistent' to not be found")
	}

	// The marker is a separate record with the deleted flag set
	if err := mt.Delete(key.New("row1", "f", "q", "", 2)); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	marker := key.New("row1", "f", "q", "", 2)
	marker.Deleted = true
	if _, found := mt.Get(marker); !found {
		t.Errorf("expected deletion marker to be stored")
	}

	if mt.MaxVersion() != 2 {
		t.Errorf("expected max version 2, got %d", mt.MaxVersion())
	}
	if mt.Len() != 2 {
		t.Errorf("expected 2 records, got %d", mt.Len())
	}
}

func TestMemTableImmutable(t *testing.T) {
	mt := NewMemTable()
	mt.SetImmutable()

	err := mt.Put(key.New("row", "f", "q", "", 1), []byte("v"))
	if !errors.Is(err, ErrImmutable) {
		t.Errorf("expected ErrImmutable, got %v", err)
	}
}

func collectRows(t *testing.T, mt *MemTable, r key.Range, families [][]byte, inclusive bool) []string {
	t.Helper()
	src := mt.NewSource()
	if err := src.Seek(r, families, inclusive); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	var out []string
	for src.Valid() {
		k := src.Key()
		out = append(out, fmt.Sprintf("%s/%s/%s@%d", k.Row, k.Family, k.Qualifier, k.Version))
		if err := src.Next(); err != nil {
			t.Fatalf("next failed: %v", err)
		}
	}
	return out
}

func populate(t *testing.T) *MemTable {
	t.Helper()
	mt := NewMemTable()
	records := []key.Key{
		key.New("a", "f1", "x", "", 3),
		key.New("a", "f1", "x", "", 1),
		key.New("a", "f2", "y", "", 2),
		key.New("b", "f1", "z", "", 5),
		key.New("c", "f2", "w", "", 4),
	}
	for _, k := range records {
		if err := mt.Put(k, []byte("v")); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}
	return mt
}

func TestMemTableSourceRange(t *testing.T) {
	mt := populate(t)

	all := collectRows(t, mt, key.AllRange(), nil, false)
	expected := []string{"a/f1/x@3", "a/f1/x@1", "a/f2/y@2", "b/f1/z@5", "c/f2/w@4"}
	if fmt.Sprint(all) != fmt.Sprint(expected) {
		t.Errorf("expected %v, got %v", expected, all)
	}

	rows := collectRows(t, mt, key.RowRange([]byte("b"), []byte("b")), nil, false)
	if fmt.Sprint(rows) != "[b/f1/z@5]" {
		t.Errorf("expected only row b, got %v", rows)
	}

	// An exclusive start skips the exact start key only
	start := key.New("a", "f1", "x", "", 3)
	exclusive := collectRows(t, mt, key.NewRange(&start, false, nil, false), nil, false)
	if len(exclusive) != 4 || exclusive[0] != "a/f1/x@1" {
		t.Errorf("expected to resume after a/f1/x@3, got %v", exclusive)
	}
}

func TestMemTableSourceFamilies(t *testing.T) {
	mt := populate(t)

	only := collectRows(t, mt, key.AllRange(), [][]byte{[]byte("f2")}, true)
	if fmt.Sprint(only) != "[a/f2/y@2 c/f2/w@4]" {
		t.Errorf("expected only family f2, got %v", only)
	}

	except := collectRows(t, mt, key.AllRange(), [][]byte{[]byte("f2")}, false)
	if fmt.Sprint(except) != "[a/f1/x@3 a/f1/x@1 b/f1/z@5]" {
		t.Errorf("expected every family but f2, got %v", except)
	}
}

func TestMemTableSourceDuplicate(t *testing.T) {
	mt := populate(t)

	src := mt.NewSource()
	if err := src.Seek(key.AllRange(), nil, false); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if err := src.Next(); err != nil {
		t.Fatalf("next failed: %v", err)
	}

	dup := src.Duplicate()
	if !dup.Valid() || dup.Key().Compare(src.Key()) != 0 {
		t.Fatalf("expected duplicate to be positioned at %s", src.Key())
	}

	// Advancing the original leaves the duplicate in place
	before := dup.Key().Clone()
	for src.Valid() {
		if err := src.Next(); err != nil {
			t.Fatalf("next failed: %v", err)
		}
	}
	if dup.Key().Compare(before) != 0 {
		t.Errorf("duplicate moved from %s to %s", before, dup.Key())
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	mt := NewMemTable()

	const writers = 4
	const perWriter = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				k := key.New(fmt.Sprintf("row-%d-%04d", w, i), "f", "q", "", uint64(i+1))
				if err := mt.Put(k, []byte("v")); err != nil {
					t.Errorf("put failed: %v", err)
					return
				}
			}
		}(w)
	}

	// Readers scan while writers insert
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := mt.NewSource()
			if err := src.Seek(key.AllRange(), nil, false); err != nil {
				t.Errorf("seek failed: %v", err)
				return
			}
			var prev key.Key
			first := true
			for src.Valid() {
				k := src.Key()
				if !first && prev.Compare(k) >= 0 {
					t.Errorf("keys out of order: %s then %s", prev, k)
					return
				}
				prev, first = k.Clone(), false
				if err := src.Next(); err != nil {
					t.Errorf("next failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := mt.Len(); got != writers*perWriter {
		t.Errorf("expected %d records, got %d", writers*perWriter, got)
	}
}
