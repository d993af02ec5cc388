// Package reducers provides ready-made combiner reducers over integer values
package reducers

import (
	"fmt"
	"math"

	"github.com/KevoDB/combiner/pkg/combiner"
	"github.com/KevoDB/combiner/pkg/key"
)

// EncodingOption selects how values are encoded
const EncodingOption = "encoding"

// ValueCodec is implemented by reducers whose values are encoded integers
type ValueCodec interface {
	Encoder() Encoder
}

// numeric folds the decoded values of a group with fold. keepFirst reports
// whether the accumulated record keeps its secondary key when a candidate
// is folded in.
type numeric struct {
	name        string
	description string
	enc         Encoder
	fold        func(acc, v int64) (int64, bool)
}

func newNumeric(name, description string, options map[string]string, fold func(acc, v int64) (int64, bool)) (*numeric, error) {
	n := &numeric{name: name, description: description, fold: fold}
	if err := n.ValidateOptions(options); err != nil {
		return nil, err
	}
	n.enc, _ = EncoderFor(options[EncodingOption])
	return n, nil
}

// Reduce decodes every record of the group and folds them together
func (n *numeric) Reduce(k key.Key, group *combiner.GroupIterator) (combiner.Result, error) {
	var (
		out     combiner.Result
		acc     int64
		started bool
	)
	for group.HasNext() {
		e, err := group.Next()
		if err != nil {
			return combiner.Result{}, err
		}
		v, err := n.enc.Decode(e.Value)
		if err != nil {
			return combiner.Result{}, fmt.Errorf("%s %s:%s: %w", k.Row, k.Family, e.Qualifier, err)
		}
		if !started {
			acc, started = v, true
			out.Qualifier, out.Visibility = e.Qualifier, e.Visibility
			continue
		}
		var keep bool
		acc, keep = n.fold(acc, v)
		if !keep {
			out.Qualifier, out.Visibility = e.Qualifier, e.Visibility
		}
	}
	out.Value = n.enc.Encode(acc)
	return out, nil
}

// ValidateOptions accepts only the encoding option
func (n *numeric) ValidateOptions(options map[string]string) error {
	for name, value := range options {
		if name != EncodingOption {
			return &combiner.ConfigError{Option: name, Reason: "unknown option"}
		}
		if _, err := EncoderFor(value); err != nil {
			return &combiner.ConfigError{Option: name, Reason: err.Error()}
		}
	}
	return nil
}

// DescribeOptions documents the reducer
func (n *numeric) DescribeOptions() combiner.OptionDescription {
	return combiner.OptionDescription{
		Name:        n.name,
		Description: n.description,
		Options: map[string]string{
			EncodingOption: "value encoding: string, varlen or fixedlen (default string)",
		},
	}
}

// Encoder returns the value encoding in use
func (n *numeric) Encoder() Encoder {
	return n.enc
}

// Sum adds the values of a group and keeps the newest secondary key.
// The total saturates at the int64 bounds instead of wrapping.
type Sum struct{ *numeric }

// NewSum creates a Sum reducer
func NewSum(options map[string]string) (*Sum, error) {
	n, err := newNumeric("sum", "Sums integer values of each (row, family)", options, func(acc, v int64) (int64, bool) {
		return saturatingAdd(acc, v), true
	})
	if err != nil {
		return nil, err
	}
	return &Sum{n}, nil
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// Max keeps the largest value of a group and the secondary key it was
// stored under. Ties go to the newest record.
type Max struct{ *numeric }

// NewMax creates a Max reducer
func NewMax(options map[string]string) (*Max, error) {
	n, err := newNumeric("max", "Keeps the largest integer value of each (row, family)", options, func(acc, v int64) (int64, bool) {
		if v > acc {
			return v, false
		}
		return acc, true
	})
	if err != nil {
		return nil, err
	}
	return &Max{n}, nil
}

// Min keeps the smallest value of a group and the secondary key it was
// stored under. Ties go to the newest record.
type Min struct{ *numeric }

// NewMin creates a Min reducer
func NewMin(options map[string]string) (*Min, error) {
	n, err := newNumeric("min", "Keeps the smallest integer value of each (row, family)", options, func(acc, v int64) (int64, bool) {
		if v < acc {
			return v, false
		}
		return acc, true
	})
	if err != nil {
		return nil, err
	}
	return &Min{n}, nil
}

// Latest returns the newest record of a group unchanged. It reads a single
// record and leaves the rest to the combiner.
type Latest struct{}

// Reduce returns the first record of the group
func (Latest) Reduce(k key.Key, group *combiner.GroupIterator) (combiner.Result, error) {
	e, err := group.Next()
	if err != nil {
		return combiner.Result{}, err
	}
	return combiner.Result{Qualifier: e.Qualifier, Visibility: e.Visibility, Value: e.Value}, nil
}

// DescribeOptions documents the reducer
func (Latest) DescribeOptions() combiner.OptionDescription {
	return combiner.OptionDescription{
		Name:        "latest",
		Description: "Keeps the newest record of each (row, family)",
	}
}

var (
	_ combiner.OptionValidator = (*Sum)(nil)
	_ combiner.OptionDescriber = (*Max)(nil)
	_ ValueCodec               = (*Min)(nil)
	_ combiner.OptionDescriber = Latest{}
)
