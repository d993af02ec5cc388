package reducers

import (
	"fmt"
	"sort"

	"github.com/KevoDB/combiner/pkg/combiner"
)

// Factory builds a reducer configured with options
type Factory func(options map[string]string) (combiner.Reducer, error)

var registry = map[string]Factory{
	"sum": func(o map[string]string) (combiner.Reducer, error) {
		r, err := NewSum(o)
		if err != nil {
			return nil, err
		}
		return r, nil
	},
	"max": func(o map[string]string) (combiner.Reducer, error) {
		r, err := NewMax(o)
		if err != nil {
			return nil, err
		}
		return r, nil
	},
	"min": func(o map[string]string) (combiner.Reducer, error) {
		r, err := NewMin(o)
		if err != nil {
			return nil, err
		}
		return r, nil
	},
	"latest": func(o map[string]string) (combiner.Reducer, error) {
		if err := combiner.ValidateOptions(Latest{}, o); err != nil {
			return nil, err
		}
		return Latest{}, nil
	},
}

// Lookup builds the reducer registered under name
func Lookup(name string, options map[string]string) (combiner.Reducer, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown reducer %q", name)
	}
	return factory(options)
}

// Names returns the registered reducer names in order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
