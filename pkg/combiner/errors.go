package combiner

import (
	"errors"
	"fmt"

	"github.com/KevoDB/combiner/pkg/key"
)

var (
	// ErrExhausted is returned by GroupIterator.Next when the group has no more records
	ErrExhausted = errors.New("group iterator exhausted")

	// ErrInvalidOption is matched by every ConfigError
	ErrInvalidOption = errors.New("invalid combiner option")

	// ErrNilSource is returned when a combiner is built without a source
	ErrNilSource = errors.New("combiner requires a source")

	// ErrNilReducer is returned when a combiner is built without a reducer
	ErrNilReducer = errors.New("combiner requires a reducer")
)

// ReductionError wraps a failure returned by a Reducer. After it is
// returned the combiner's position is undefined and the scan must be
// abandoned.
type ReductionError struct {
	// Key is the anchor key of the group being reduced
	Key key.Key
	Err error
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("reduction failed for group %s %s: %v", e.Key.Row, e.Key.Family, e.Err)
}

func (e *ReductionError) Unwrap() error {
	return e.Err
}

// ConfigError reports an option that the reducer does not accept
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", ErrInvalidOption, e.Option)
	}
	return fmt.Sprintf("%v: %q: %s", ErrInvalidOption, e.Option, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidOption
}
