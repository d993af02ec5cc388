package key

// Range is a scan boundary over composite keys. A nil Start or End leaves
// that side unbounded.
type Range struct {
	Start          *Key
	StartInclusive bool
	End            *Key
	EndInclusive   bool
}

// NewRange builds a range between two keys. The keys are cloned.
func NewRange(start *Key, startInclusive bool, end *Key, endInclusive bool) Range {
	r := Range{StartInclusive: startInclusive, EndInclusive: endInclusive}
	if start != nil {
		s := start.Clone()
		r.Start = &s
	}
	if end != nil {
		e := end.Clone()
		r.End = &e
	}
	return r
}

// AllRange returns a range covering every key
func AllRange() Range {
	return Range{StartInclusive: true, EndInclusive: true}
}

// RowRange covers every key whose row lies in [startRow, endRow]. An empty
// row leaves that side unbounded.
func RowRange(startRow, endRow []byte) Range {
	r := Range{StartInclusive: true}
	if len(startRow) > 0 {
		r.Start = &Key{Row: cloneBytes(startRow), Version: MaxVersion, Deleted: true}
	}
	if len(endRow) > 0 {
		// The smallest key of the following row bounds the range exclusively
		following := append(cloneBytes(endRow), 0)
		r.End = &Key{Row: following, Version: MaxVersion, Deleted: true}
	}
	return r
}

// PrefixRange covers every key whose row starts with prefix
func PrefixRange(prefix []byte) Range {
	r := Range{StartInclusive: true}
	if len(prefix) == 0 {
		return r
	}
	r.Start = &Key{Row: cloneBytes(prefix), Version: MaxVersion, Deleted: true}
	if next := prefixSuccessor(prefix); next != nil {
		r.End = &Key{Row: next, Version: MaxVersion, Deleted: true}
	}
	return r
}

// BeforeStartKey reports whether k sorts before the start of the range
func (r Range) BeforeStartKey(k Key) bool {
	if r.Start == nil {
		return false
	}
	c := k.Compare(*r.Start)
	if r.StartInclusive {
		return c < 0
	}
	return c <= 0
}

// AfterEndKey reports whether k sorts after the end of the range
func (r Range) AfterEndKey(k Key) bool {
	if r.End == nil {
		return false
	}
	c := k.Compare(*r.End)
	if r.EndInclusive {
		return c > 0
	}
	return c >= 0
}

// Contains reports whether k lies inside the range
func (r Range) Contains(k Key) bool {
	return !r.BeforeStartKey(k) && !r.AfterEndKey(k)
}

// MaximizeStartVersion returns a copy of r whose start key carries
// MaxVersion and is inclusive, so a seek lands on the newest version of the
// start column instead of somewhere in the middle of its versions.
func MaximizeStartVersion(r Range) Range {
	if r.Start == nil || (r.Start.Version == MaxVersion && r.Start.Deleted && r.StartInclusive) {
		return r
	}
	start := r.Start.Clone()
	start.Version = MaxVersion
	// Deletion markers sort first on equal versions
	start.Deleted = true
	out := r
	out.Start = &start
	out.StartInclusive = true
	return out
}

func prefixSuccessor(prefix []byte) []byte {
	next := cloneBytes(prefix)
	for i := len(next) - 1; i >= 0; i-- {
		if next[i] != 0xff {
			next[i]++
			return next[:i+1]
		}
	}
	return nil
}
