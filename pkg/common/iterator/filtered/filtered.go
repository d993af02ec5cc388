// Package filtered provides the column family filter applied by storage sources during a seek
package filtered

import (
	"bytes"
)

// FamilyFilter selects column families. In inclusive mode only the listed
// families pass; otherwise every family except the listed ones passes.
type FamilyFilter struct {
	families  [][]byte
	inclusive bool
}

// NewFamilyFilter creates a filter over a copy of families
func NewFamilyFilter(families [][]byte, inclusive bool) *FamilyFilter {
	f := &FamilyFilter{inclusive: inclusive}
	if len(families) > 0 {
		f.families = make([][]byte, len(families))
		for i, fam := range families {
			f.families[i] = append([]byte(nil), fam...)
		}
	}
	return f
}

// Accept returns true if a record in the given family passes the filter
func (f *FamilyFilter) Accept(family []byte) bool {
	if f == nil {
		return true
	}
	listed := f.contains(family)
	if f.inclusive {
		return listed
	}
	return !listed
}

// PassesAll returns true if the filter accepts every family
func (f *FamilyFilter) PassesAll() bool {
	return f == nil || (!f.inclusive && len(f.families) == 0)
}

// Families returns a copy of the configured families
func (f *FamilyFilter) Families() [][]byte {
	if f == nil {
		return nil
	}
	out := make([][]byte, len(f.families))
	for i, fam := range f.families {
		out[i] = append([]byte(nil), fam...)
	}
	return out
}

// Inclusive reports the filter mode
func (f *FamilyFilter) Inclusive() bool {
	return f != nil && f.inclusive
}

func (f *FamilyFilter) contains(family []byte) bool {
	for _, fam := range f.families {
		if bytes.Equal(fam, family) {
			return true
		}
	}
	return false
}
