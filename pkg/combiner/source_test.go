package combiner

import (
	"sort"
	"strconv"
	"testing"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/iterator/filtered"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/stretchr/testify/require"
)

// sliceSource is an in-memory SortedSource over a sorted slice of records.
// failNextAt makes the n-th call to Next fail with failErr.
type sliceSource struct {
	records []iterator.Record
	pos     int
	rng     key.Range
	filter  *filtered.FamilyFilter

	nextCalls  int
	failNextAt int
	failSeek   bool
	failErr    error
}

func newSliceSource(records ...iterator.Record) *sliceSource {
	sorted := append([]iterator.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key.Compare(sorted[j].Key) < 0
	})
	return &sliceSource{records: sorted, pos: len(sorted), rng: key.AllRange()}
}

func (s *sliceSource) Valid() bool {
	return s.pos < len(s.records)
}

func (s *sliceSource) Key() key.Key {
	if !s.Valid() {
		return key.Key{}
	}
	return s.records[s.pos].Key
}

func (s *sliceSource) Value() []byte {
	if !s.Valid() {
		return nil
	}
	return s.records[s.pos].Value
}

func (s *sliceSource) Next() error {
	s.nextCalls++
	if s.failNextAt > 0 && s.nextCalls >= s.failNextAt {
		return s.failErr
	}
	if !s.Valid() {
		return nil
	}
	s.pos++
	s.settle()
	return nil
}

func (s *sliceSource) Seek(r key.Range, families [][]byte, inclusive bool) error {
	if s.failSeek {
		return s.failErr
	}
	s.rng = key.NewRange(r.Start, r.StartInclusive, r.End, r.EndInclusive)
	s.filter = filtered.NewFamilyFilter(families, inclusive)
	s.pos = 0
	s.settle()
	return nil
}

func (s *sliceSource) settle() {
	for ; s.pos < len(s.records); s.pos++ {
		k := s.records[s.pos].Key
		if s.rng.AfterEndKey(k) {
			s.pos = len(s.records)
			return
		}
		if !s.rng.BeforeStartKey(k) && s.filter.Accept(k.Family) {
			return
		}
	}
}

func (s *sliceSource) Duplicate() iterator.SortedSource {
	dup := *s
	return &dup
}

func rec(row, family, qualifier string, version uint64, value string) iterator.Record {
	return iterator.Record{Key: key.New(row, family, qualifier, "", version), Value: []byte(value)}
}

func tombstone(row, family, qualifier string, version uint64) iterator.Record {
	k := key.New(row, family, qualifier, "", version)
	k.Deleted = true
	return iterator.Record{Key: k}
}

// sumReducer adds decimal values and keeps the newest secondary key
var sumReducer = ReducerFunc(func(k key.Key, group *GroupIterator) (Result, error) {
	var out Result
	total := 0
	first := true
	for group.HasNext() {
		e, err := group.Next()
		if err != nil {
			return Result{}, err
		}
		if first {
			out.Qualifier, out.Visibility = e.Qualifier, e.Visibility
			first = false
		}
		n, err := strconv.Atoi(string(e.Value))
		if err != nil {
			return Result{}, err
		}
		total += n
	}
	out.Value = []byte(strconv.Itoa(total))
	return out, nil
})

// collect drains a positioned source into "row family:qualifier@version=value" strings
func collect(t *testing.T, src iterator.SortedSource) []string {
	t.Helper()
	var out []string
	for src.Valid() {
		k := src.Key()
		out = append(out, string(k.Row)+" "+string(k.Family)+":"+string(k.Qualifier)+
			"@"+strconv.FormatUint(k.Version, 10)+"="+string(src.Value()))
		require.NoError(t, src.Next())
	}
	return out
}

func seekAll(t *testing.T, src iterator.SortedSource) {
	t.Helper()
	require.NoError(t, src.Seek(key.AllRange(), nil, false))
}
