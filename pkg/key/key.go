// Package key defines the composite key used by versioned records and the
// orderings and partial comparisons the scan pipeline relies on.
package key

import (
	"bytes"
	"fmt"
	"math"
)

// MaxVersion is the newest possible version. Seeking to a key carrying it
// lands on the newest record of that column.
const MaxVersion uint64 = math.MaxUint64

// PartialKey selects how many leading components of a Key take part in a
// comparison.
type PartialKey int

const (
	// Row compares the row only
	Row PartialKey = iota
	// RowFamily compares the primary key (row and family)
	RowFamily
	// RowFamilyQualifier adds the qualifier
	RowFamilyQualifier
	// RowFamilyQualifierVisibility compares primary and secondary keys but ignores the version
	RowFamilyQualifierVisibility
	// RowFamilyQualifierVisibilityVersion adds the version
	RowFamilyQualifierVisibilityVersion
	// All compares every component, including the deletion flag
	All
)

// String returns the name of the partial key level
func (p PartialKey) String() string {
	switch p {
	case Row:
		return "ROW"
	case RowFamily:
		return "ROW_COLFAM"
	case RowFamilyQualifier:
		return "ROW_COLFAM_COLQUAL"
	case RowFamilyQualifierVisibility:
		return "ROW_COLFAM_COLQUAL_COLVIS"
	case RowFamilyQualifierVisibilityVersion:
		return "ROW_COLFAM_COLQUAL_COLVIS_TIME"
	case All:
		return "ROW_COLFAM_COLQUAL_COLVIS_TIME_DEL"
	default:
		return fmt.Sprintf("PARTIAL(%d)", int(p))
	}
}

// Key is a composite key: a primary part (row, family), a secondary part
// (qualifier, visibility), a version and a deletion flag.
type Key struct {
	Row        []byte
	Family     []byte
	Qualifier  []byte
	Visibility []byte
	Version    uint64
	Deleted    bool
}

// New builds a live key from string components
func New(row, family, qualifier, visibility string, version uint64) Key {
	return Key{
		Row:        []byte(row),
		Family:     []byte(family),
		Qualifier:  []byte(qualifier),
		Visibility: []byte(visibility),
		Version:    version,
	}
}

// Compare orders keys by row, family, qualifier and visibility ascending,
// then by version descending so newer versions come first. A deletion marker
// sorts before a live record with the same version.
func (k Key) Compare(other Key) int {
	return k.ComparePartial(other, All)
}

// ComparePartial compares only the components selected by p.
func (k Key) ComparePartial(other Key, p PartialKey) int {
	if c := bytes.Compare(k.Row, other.Row); c != 0 || p == Row {
		return c
	}
	if c := bytes.Compare(k.Family, other.Family); c != 0 || p == RowFamily {
		return c
	}
	if c := bytes.Compare(k.Qualifier, other.Qualifier); c != 0 || p == RowFamilyQualifier {
		return c
	}
	if c := bytes.Compare(k.Visibility, other.Visibility); c != 0 || p == RowFamilyQualifierVisibility {
		return c
	}

	// Versions sort newest first
	if k.Version != other.Version {
		if k.Version > other.Version {
			return -1
		}
		return 1
	}
	if p == RowFamilyQualifierVisibilityVersion || k.Deleted == other.Deleted {
		return 0
	}
	if k.Deleted {
		return -1
	}
	return 1
}

// EqualPartial reports whether the components selected by p are equal
func (k Key) EqualPartial(other Key, p PartialKey) bool {
	return k.ComparePartial(other, p) == 0
}

// Clone returns a deep copy of the key that shares no memory with k
func (k Key) Clone() Key {
	return Key{
		Row:        cloneBytes(k.Row),
		Family:     cloneBytes(k.Family),
		Qualifier:  cloneBytes(k.Qualifier),
		Visibility: cloneBytes(k.Visibility),
		Version:    k.Version,
		Deleted:    k.Deleted,
	}
}

// Set copies other into k, reusing k's buffers where they are large enough.
func (k *Key) Set(other Key) {
	k.Row = append(k.Row[:0], other.Row...)
	k.Family = append(k.Family[:0], other.Family...)
	k.Qualifier = append(k.Qualifier[:0], other.Qualifier...)
	k.Visibility = append(k.Visibility[:0], other.Visibility...)
	k.Version = other.Version
	k.Deleted = other.Deleted
}

// WithVersion returns a copy of k carrying the given version
func (k Key) WithVersion(version uint64) Key {
	c := k.Clone()
	c.Version = version
	return c
}

// String renders the key as "row family:qualifier [visibility] version",
// with a trailing "deleted" for deletion markers.
func (k Key) String() string {
	s := fmt.Sprintf("%s %s:%s [%s] %d", k.Row, k.Family, k.Qualifier, k.Visibility, k.Version)
	if k.Deleted {
		s += " deleted"
	}
	return s
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
