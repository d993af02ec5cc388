package pebblestore

import (
	"testing"

	"github.com/KevoDB/combiner/pkg/combiner"
	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/iterator/bounded"
	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, Logger: log.NewDiscardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func keys(t *testing.T, src iterator.SortedSource) []string {
	t.Helper()
	var out []string
	for src.Valid() {
		out = append(out, src.Key().String()+"="+string(src.Value()))
		require.NoError(t, src.Next())
	}
	return out
}

func newSource(t *testing.T, s *Store) *bounded.Source {
	t.Helper()
	src, err := s.NewSource()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestStoreOrdersByCompositeKey(t *testing.T) {
	s := openMem(t)

	require.NoError(t, s.Put(key.New("B", "f", "x", "", 1), []byte("b1")))
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 1), []byte("a1")))
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 9), []byte("a9")))
	require.NoError(t, s.Delete(key.New("A", "f", "x", "", 5)))
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 5), []byte("a5")))
	require.NoError(t, s.Put(key.New("A\x00", "f", "x", "", 1), []byte("nul")))

	src := newSource(t, s)
	require.NoError(t, src.Seek(key.AllRange(), nil, false))

	assert.Equal(t, []string{
		"A f:x [] 9=a9",
		"A f:x [] 5 deleted=",
		"A f:x [] 5=a5",
		"A f:x [] 1=a1",
		"A\x00 f:x [] 1=nul",
		"B f:x [] 1=b1",
	}, keys(t, src))
}

func TestStoreRangeAndFamilies(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.ApplyBatch([]iterator.Record{
		{Key: key.New("A", "f", "x", "", 1), Value: []byte("1")},
		{Key: key.New("B", "f", "x", "", 1), Value: []byte("2")},
		{Key: key.New("B", "g", "x", "", 1), Value: []byte("3")},
		{Key: key.New("C", "f", "x", "", 1), Value: []byte("4")},
	}))

	src := newSource(t, s)
	require.NoError(t, src.Seek(key.RowRange([]byte("B"), []byte("C")), [][]byte{[]byte("f")}, true))
	assert.Equal(t, []string{"B f:x [] 1=2", "C f:x [] 1=4"}, keys(t, src))

	require.NoError(t, src.Seek(key.PrefixRange([]byte("B")), [][]byte{[]byte("f")}, false))
	assert.Equal(t, []string{"B g:x [] 1=3"}, keys(t, src))
}

func TestSourceReadsSnapshot(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 1), []byte("old")))

	src := newSource(t, s)
	require.NoError(t, s.Put(key.New("B", "f", "x", "", 1), []byte("new")))

	require.NoError(t, src.Seek(key.AllRange(), nil, false))
	assert.Equal(t, []string{"A f:x [] 1=old"}, keys(t, src))

	// A duplicate shares the snapshot
	require.NoError(t, src.Seek(key.AllRange(), nil, false))
	dup := src.Duplicate()
	defer dup.(*bounded.Source).Close()
	assert.Equal(t, []string{"A f:x [] 1=old"}, keys(t, dup))
}

func TestDuplicatePositionedIdentically(t *testing.T) {
	s := openMem(t)
	for i, row := range []string{"A", "B", "C", "D"} {
		require.NoError(t, s.Put(key.New(row, "f", "x", "", uint64(i)), []byte(row)))
	}

	src := newSource(t, s)
	require.NoError(t, src.Seek(key.RowRange(nil, []byte("C")), nil, false))
	require.NoError(t, src.Next())

	dup := src.Duplicate()
	defer dup.(*bounded.Source).Close()
	require.True(t, dup.Valid())
	assert.Equal(t, "B", string(dup.Key().Row))

	require.NoError(t, src.Next())
	assert.Equal(t, "B", string(dup.Key().Row))

	// The range travels with the duplicate
	assert.Equal(t, []string{"B f:x [] 1=B", "C f:x [] 2=C"}, keys(t, dup))
	assert.Equal(t, []string{"C f:x [] 2=C"}, keys(t, src))
}

func TestCombinerOverStore(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 3), []byte("1")))
	require.NoError(t, s.Put(key.New("A", "f", "y", "", 2), []byte("2")))
	require.NoError(t, s.Put(key.New("B", "f", "z", "", 5), []byte("3")))
	require.NoError(t, s.Delete(key.New("C", "f", "z", "", 5)))
	require.NoError(t, s.Put(key.New("C", "f", "z", "", 4), []byte("9")))

	latest := combiner.ReducerFunc(func(k key.Key, g *combiner.GroupIterator) (combiner.Result, error) {
		e, err := g.Next()
		return combiner.Result{Qualifier: e.Qualifier, Value: e.Value}, err
	})

	c, err := combiner.New(newSource(t, s), latest, combiner.WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	require.NoError(t, c.Seek(key.AllRange(), nil, false))
	assert.Equal(t, []string{"A f:x [] 3=1", "B f:z [] 5=3"}, keys(t, c))
}

func TestStoreCloseReleasesSources(t *testing.T) {
	s, err := Open(Options{InMemory: true, Logger: log.NewDiscardLogger()})
	require.NoError(t, err)
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 1), []byte("1")))

	src, err := s.NewSource()
	require.NoError(t, err)
	require.NoError(t, src.Seek(key.AllRange(), nil, false))
	_ = src.Duplicate()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put(key.New("A", "f", "x", "", 2), nil), ErrClosed)
	_, err = s.NewSource()
	assert.ErrorIs(t, err, ErrClosed)

	// Closing an already released source is harmless
	assert.NoError(t, src.Close())
}

func TestStorePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir, Sync: true, Logger: log.NewDiscardLogger()})
	require.NoError(t, err)
	require.NoError(t, s.Put(key.New("A", "f", "x", "", 1), []byte("kept")))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir, Logger: log.NewDiscardLogger()})
	require.NoError(t, err)
	defer s.Close()

	src := newSource(t, s)
	require.NoError(t, src.Seek(key.AllRange(), nil, false))
	assert.Equal(t, []string{"A f:x [] 1=kept"}, keys(t, src))
}

func TestOpenRequiresDirectory(t *testing.T) {
	_, err := Open(Options{})
	assert.ErrorIs(t, err, ErrNoDirectory)
}
