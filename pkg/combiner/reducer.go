package combiner

import (
	"github.com/KevoDB/combiner/pkg/key"
)

// Result is the outcome of reducing one group: the secondary key the
// synthesized record carries and its value.
type Result struct {
	Qualifier  []byte
	Visibility []byte
	Value      []byte
}

// Reducer collapses the records of one group into a single Result.
//
// Reduce is called exactly once per group with the group's newest key and an
// iterator over the group's records in source order, newest version first.
// It may stop consuming at any point; the combiner skips whatever is left.
// The key and iterator are only valid for the duration of the call.
//
// A Reducer may be shared between a combiner and its duplicates, so it must
// be safe for concurrent use if duplicates run on different goroutines.
type Reducer interface {
	Reduce(k key.Key, group *GroupIterator) (Result, error)
}

// ReducerFunc adapts a function to the Reducer interface
type ReducerFunc func(k key.Key, group *GroupIterator) (Result, error)

// Reduce calls f(k, group)
func (f ReducerFunc) Reduce(k key.Key, group *GroupIterator) (Result, error) {
	return f(k, group)
}

// OptionValidator is implemented by reducers that accept options. Reducers
// that do not implement it accept no options at all.
type OptionValidator interface {
	ValidateOptions(options map[string]string) error
}

// OptionDescription documents a configurable reducer
type OptionDescription struct {
	Name        string
	Description string
	// Options maps each accepted option name to its description
	Options map[string]string
}

// OptionDescriber is implemented by reducers that document their options
type OptionDescriber interface {
	DescribeOptions() OptionDescription
}

// ValidateOptions checks options against reducer. Without an
// OptionValidator the option map must be empty.
func ValidateOptions(reducer Reducer, options map[string]string) error {
	if v, ok := reducer.(OptionValidator); ok {
		return v.ValidateOptions(options)
	}
	for name := range options {
		return &ConfigError{Option: name, Reason: "reducer accepts no options"}
	}
	return nil
}
