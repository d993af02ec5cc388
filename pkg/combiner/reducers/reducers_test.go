package reducers

import (
	"errors"
	"math"
	"testing"

	"github.com/KevoDB/combiner/pkg/combiner"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/KevoDB/combiner/pkg/memtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	row, family, qualifier string
	version                uint64
	value                  int64
}

// reduceAll writes records into a memtable with enc and returns the
// combined view as "row family:qualifier@version" -> decoded value
func reduceAll(t *testing.T, r combiner.Reducer, enc Encoder, records ...record) map[string]int64 {
	t.Helper()
	mt := memtable.NewMemTable()
	for _, rec := range records {
		require.NoError(t, mt.Put(key.New(rec.row, rec.family, rec.qualifier, "", rec.version), enc.Encode(rec.value)))
	}

	c, err := combiner.New(mt.NewSource(), r)
	require.NoError(t, err)
	require.NoError(t, c.Seek(key.AllRange(), nil, false))

	out := map[string]int64{}
	for c.Valid() {
		v, err := enc.Decode(c.Value())
		require.NoError(t, err)
		k := c.Key()
		out[string(k.Row)+" "+string(k.Family)+":"+string(k.Qualifier)+"@"+itoa(k.Version)] = v
		require.NoError(t, c.Next())
	}
	return out
}

func itoa(v uint64) string {
	return string(StringEncoder{}.Encode(int64(v)))
}

func TestSumEncodings(t *testing.T) {
	for _, name := range []string{EncodingString, EncodingVarLen, EncodingFixedLen} {
		t.Run(name, func(t *testing.T) {
			sum, err := NewSum(map[string]string{EncodingOption: name})
			require.NoError(t, err)
			assert.Equal(t, name, sum.Encoder().Name())

			got := reduceAll(t, sum, sum.Encoder(),
				record{"A", "f", "x", 3, 1},
				record{"A", "f", "y", 2, 2},
				record{"B", "f", "z", 5, 3},
				record{"B", "f", "z", 4, -10},
			)
			assert.Equal(t, map[string]int64{"A f:x@3": 3, "B f:z@5": -7}, got)
		})
	}
}

func TestSumDefaultsToString(t *testing.T) {
	sum, err := NewSum(nil)
	require.NoError(t, err)
	assert.Equal(t, EncodingString, sum.Encoder().Name())
}

func TestSumSaturates(t *testing.T) {
	sum, err := NewSum(map[string]string{EncodingOption: EncodingFixedLen})
	require.NoError(t, err)

	got := reduceAll(t, sum, sum.Encoder(),
		record{"A", "f", "x", 3, math.MaxInt64},
		record{"A", "f", "x", 2, 1},
		record{"B", "f", "x", 3, math.MinInt64},
		record{"B", "f", "x", 2, -1},
	)
	assert.Equal(t, int64(math.MaxInt64), got["A f:x@3"])
	assert.Equal(t, int64(math.MinInt64), got["B f:x@3"])
}

func TestMaxAndMinKeepSelectedQualifier(t *testing.T) {
	records := []record{
		{"A", "f", "a", 1, 5},
		{"A", "f", "b", 9, 2},
		{"A", "f", "c", 4, 7},
		{"A", "f", "d", 3, 7},
	}

	max, err := NewMax(nil)
	require.NoError(t, err)
	// Ties go to the record read first
	assert.Equal(t, map[string]int64{"A f:c@1": 7}, reduceAll(t, max, StringEncoder{}, records...))

	min, err := NewMin(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A f:b@1": 2}, reduceAll(t, min, StringEncoder{}, records...))
}

func TestLatest(t *testing.T) {
	got := reduceAll(t, Latest{}, StringEncoder{},
		record{"A", "f", "x", 3, 10},
		record{"A", "f", "x", 2, 20},
		record{"A", "f", "y", 1, 30},
	)
	assert.Equal(t, map[string]int64{"A f:x@3": 10}, got)
}

func TestMalformedValue(t *testing.T) {
	mt := memtable.NewMemTable()
	require.NoError(t, mt.Put(key.New("A", "f", "x", "", 1), []byte("seven")))

	sum, err := NewSum(nil)
	require.NoError(t, err)
	c, err := combiner.New(mt.NewSource(), sum)
	require.NoError(t, err)

	err = c.Seek(key.AllRange(), nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedValue)

	var redErr *combiner.ReductionError
	assert.True(t, errors.As(err, &redErr))
}

func TestOptionValidation(t *testing.T) {
	_, err := NewSum(map[string]string{"type": "varlen"})
	assert.ErrorIs(t, err, combiner.ErrInvalidOption)

	_, err = NewMax(map[string]string{EncodingOption: "base64"})
	assert.ErrorIs(t, err, combiner.ErrInvalidOption)

	sum, err := NewSum(nil)
	require.NoError(t, err)

	// The combiner runs the reducer's own validation
	_, err = combiner.New(memtable.NewMemTable().NewSource(), sum,
		combiner.WithOptions(map[string]string{EncodingOption: EncodingVarLen}))
	assert.NoError(t, err)

	_, err = combiner.New(memtable.NewMemTable().NewSource(), Latest{},
		combiner.WithOptions(map[string]string{EncodingOption: EncodingVarLen}))
	assert.ErrorIs(t, err, combiner.ErrInvalidOption)
}

func TestDescribeOptions(t *testing.T) {
	sum, err := NewSum(nil)
	require.NoError(t, err)
	desc := sum.DescribeOptions()
	assert.Equal(t, "sum", desc.Name)
	assert.Contains(t, desc.Options, EncodingOption)

	assert.Equal(t, "latest", Latest{}.DescribeOptions().Name)
	assert.Empty(t, Latest{}.DescribeOptions().Options)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"latest", "max", "min", "sum"}, Names())

	for _, name := range Names() {
		r, err := Lookup(name, nil)
		require.NoError(t, err, name)
		require.NotNil(t, r)

		d, ok := r.(combiner.OptionDescriber)
		require.True(t, ok)
		assert.Equal(t, name, d.DescribeOptions().Name)
	}

	r, err := Lookup("sum", map[string]string{EncodingOption: EncodingVarLen})
	require.NoError(t, err)
	codec, ok := r.(ValueCodec)
	require.True(t, ok)
	assert.Equal(t, EncodingVarLen, codec.Encoder().Name())

	_, err = Lookup("avg", nil)
	assert.Error(t, err)

	_, err = Lookup("latest", map[string]string{"x": "y"})
	assert.ErrorIs(t, err, combiner.ErrInvalidOption)

	r, err = Lookup("max", map[string]string{"x": "y"})
	assert.ErrorIs(t, err, combiner.ErrInvalidOption)
	assert.Nil(t, r)
}

func TestEncoderDecodeErrors(t *testing.T) {
	_, err := EncoderFor("hex")
	assert.Error(t, err)

	tests := []struct {
		enc   Encoder
		input []byte
	}{
		{StringEncoder{}, []byte("1.5")},
		{VarLenEncoder{}, nil},
		{VarLenEncoder{}, []byte{0x80}},
		{VarLenEncoder{}, []byte{0x02, 0x02}},
		{FixedLenEncoder{}, []byte{1, 2, 3}},
	}
	for _, tt := range tests {
		_, err := tt.enc.Decode(tt.input)
		assert.ErrorIs(t, err, ErrMalformedValue, "%s %x", tt.enc.Name(), tt.input)
	}
}
