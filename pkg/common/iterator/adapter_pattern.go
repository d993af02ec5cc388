package iterator

// This file documents the recommended pattern for SortedSource implementations.
//
// Guidelines for sources and stages:
//
// 1. Naming Convention:
//    - Storage packages expose a bounded.Cursor and wrap it in bounded.Source
//      rather than implementing range and family handling themselves
//    - Stages that wrap another SortedSource keep it in a field named "source"
//
// 2. Positioning:
//    - A freshly constructed source is unpositioned; Valid returns false until Seek
//    - Seek must honor both the range bounds and the family filter
//    - Next on an exhausted source is a no-op that returns nil
//
// 3. Buffers:
//    - Key and Value may alias internal buffers; document it and never retain
//      the caller's slices
//    - A stage that needs a key beyond the next Next copies it into a buffer
//      it owns exclusively (key.Key.Set)
//
// 4. Duplicate:
//    - Must not share mutable state with the original
//    - Must carry the position, including the range and family filter in effect
//
// Example:
//
// // PassThrough forwards every call to the wrapped source
// type PassThrough struct {
//     source SortedSource
// }
//
// func (p *PassThrough) Valid() bool      { return p.source.Valid() }
// func (p *PassThrough) Key() key.Key     { return p.source.Key() }
// func (p *PassThrough) Value() []byte    { return p.source.Value() }
// func (p *PassThrough) Next() error      { return p.source.Next() }
//
// func (p *PassThrough) Seek(r key.Range, families [][]byte, inclusive bool) error {
//     return p.source.Seek(r, families, inclusive)
// }
//
// func (p *PassThrough) Duplicate() SortedSource {
//     return &PassThrough{source: p.source.Duplicate()}
// }
