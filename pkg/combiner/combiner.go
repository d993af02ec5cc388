// Package combiner implements a merged view over a sorted source of
// versioned records. Records sharing a row and column family are collapsed
// into a single entry by a caller-supplied Reducer.
package combiner

import (
	"context"
	"io"
	"time"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/KevoDB/combiner/pkg/stats"
	"github.com/KevoDB/combiner/pkg/telemetry"
)

// Option configures a Combiner
type Option func(*Combiner)

// WithOptions sets the reducer options validated by New
func WithOptions(options map[string]string) Option {
	return func(c *Combiner) {
		c.options = make(map[string]string, len(options))
		for k, v := range options {
			c.options[k] = v
		}
	}
}

// WithLogger sets the logger used for seek and failure diagnostics
func WithLogger(logger log.Logger) Option {
	return func(c *Combiner) {
		c.logger = logger
	}
}

// WithTelemetry records combiner metrics through tel
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(c *Combiner) {
		c.tel = tel
	}
}

// WithStats tracks operation counts and latencies in collector
func WithStats(collector stats.Collector) Option {
	return func(c *Combiner) {
		c.stats = collector
	}
}

// Combiner is the merged view. For every group of consecutive source records
// sharing a primary key it exposes one synthesized record carrying the
// group's row and family, the reducer's qualifier and visibility, and the
// version of the group's newest record.
//
// A Combiner is not safe for concurrent use; use Duplicate to scan from
// several goroutines.
type Combiner struct {
	source      iterator.SortedSource
	reducer     Reducer
	reducerName string
	options     map[string]string

	logger  log.Logger
	tel     telemetry.Telemetry
	metrics Metrics
	stats   stats.Collector

	// Synthesized top record
	topKey   key.Key
	topValue []byte
	hasTop   bool

	// workKey holds the anchor of the group being reduced. The top key
	// shares its row and family buffers.
	workKey key.Key
}

// New creates a combiner over source. The combiner is unpositioned until
// Seek is called. Options are validated against the reducer before any
// iteration takes place.
func New(source iterator.SortedSource, reducer Reducer, opts ...Option) (*Combiner, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if reducer == nil {
		return nil, ErrNilReducer
	}

	c := &Combiner{
		source:      source,
		reducer:     reducer,
		reducerName: reducerName(reducer),
		options:     map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := ValidateOptions(reducer, c.options); err != nil {
		return nil, err
	}

	if c.logger == nil {
		c.logger = log.GetDefaultLogger()
	}
	c.logger = c.logger.WithFields(map[string]interface{}{
		"component": telemetry.ComponentCombiner,
		"reducer":   c.reducerName,
	})
	c.metrics = NewMetrics(c.tel, c.reducerName)

	return c, nil
}

func reducerName(r Reducer) string {
	if d, ok := r.(OptionDescriber); ok {
		if name := d.DescribeOptions().Name; name != "" {
			return name
		}
	}
	return "custom"
}

// DescribeOptions documents the combiner. Reducers that describe themselves
// take precedence over the generic description.
func (c *Combiner) DescribeOptions() OptionDescription {
	if d, ok := c.reducer.(OptionDescriber); ok {
		return d.DescribeOptions()
	}
	return OptionDescription{
		Name:        "combine_row_family",
		Description: "Applies a reduce function to (qualifier, visibility, value) triples with identical (row, family)",
	}
}

// Valid returns true if the combiner is positioned at a synthesized record
func (c *Combiner) Valid() bool {
	return c.hasTop
}

// Key returns the current synthesized key. It is only valid until the next
// call to Next or Seek.
func (c *Combiner) Key() key.Key {
	if !c.hasTop {
		return key.Key{}
	}
	return c.topKey
}

// Value returns the current reduced value
func (c *Combiner) Value() []byte {
	if !c.hasTop {
		return nil
	}
	return c.topValue
}

// Next discards the current record and reduces the following group. It is a
// no-op once the combiner is exhausted.
func (c *Combiner) Next() error {
	start := time.Now()
	err := c.advance()
	c.metrics.RecordNext(context.Background(), time.Since(start), c.hasTop)
	if c.stats != nil {
		c.stats.TrackOperationWithLatency(stats.OpNext, uint64(time.Since(start).Nanoseconds()))
	}
	return err
}

func (c *Combiner) advance() error {
	if !c.hasTop {
		return nil
	}
	c.clearTop()
	return c.findTop()
}

func (c *Combiner) clearTop() {
	c.hasTop = false
	c.topKey = key.Key{}
	c.topValue = nil
}

// findTop reduces the group at the source's position into the top record.
// Deletion markers never anchor a group: the marker and every older version
// it shadows are skipped so the combiner always moves forward.
func (c *Combiner) findTop() error {
	for c.source.Valid() {
		k := c.source.Key()
		if k.Deleted {
			if err := c.skipDeleted(k); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		c.workKey.Set(k)
		group := newGroupIterator(c.source, &c.workKey)

		result, err := c.reducer.Reduce(c.workKey, group)
		if group.err != nil {
			return group.err
		}
		if err != nil {
			c.logger.Warn("Reducer failed on %s: %v", c.workKey.String(), err)
			c.metrics.RecordReductionError(context.Background())
			if c.stats != nil {
				c.stats.TrackError("reduction_error")
			}
			return &ReductionError{Key: c.workKey.Clone(), Err: err}
		}

		reduced := group.consumed
		skipped, err := group.drain()
		if err != nil {
			return err
		}

		c.topKey = key.Key{
			Row:        c.workKey.Row,
			Family:     c.workKey.Family,
			Qualifier:  result.Qualifier,
			Visibility: result.Visibility,
			Version:    c.workKey.Version,
		}
		c.topValue = result.Value
		c.hasTop = true

		c.metrics.RecordGroup(context.Background(), time.Since(start), reduced, skipped)
		if c.stats != nil {
			c.stats.TrackGroup(uint64(reduced), uint64(skipped))
		}
		return nil
	}
	return nil
}

// skipDeleted advances the source past marker and all records with the
// same row, family, qualifier and visibility
func (c *Combiner) skipDeleted(marker key.Key) error {
	c.workKey.Set(marker)
	shadowed := -1
	for c.source.Valid() && c.source.Key().EqualPartial(c.workKey, key.RowFamilyQualifierVisibility) {
		if err := c.source.Next(); err != nil {
			return err
		}
		shadowed++
	}

	c.metrics.RecordTombstone(context.Background(), shadowed)
	if c.stats != nil {
		c.stats.TrackTombstone(uint64(shadowed))
	}
	return nil
}

// Seek positions the combiner at the first synthesized record at or after
// the start of r. The source is seeked to the newest version of the start
// column so a group is never entered in its middle.
func (c *Combiner) Seek(r key.Range, families [][]byte, inclusive bool) error {
	start := time.Now()
	c.clearTop()

	if err := c.source.Seek(key.MaximizeStartVersion(r), families, inclusive); err != nil {
		return err
	}
	if err := c.findTop(); err != nil {
		return err
	}

	if r.Start != nil {
		startKey := r.Start.Clone()

		// Versions newer than the requested start were folded into the top
		// group; pass that group up
		for c.hasTop && c.topKey.EqualPartial(startKey, key.RowFamilyQualifierVisibility) &&
			(c.topKey.Version > startKey.Version ||
				(!r.StartInclusive && c.topKey.Version == startKey.Version)) {
			if err := c.advance(); err != nil {
				return err
			}
		}

		for c.hasTop && c.topKey.ComparePartial(startKey, key.RowFamilyQualifierVisibility) < 0 {
			if err := c.advance(); err != nil {
				return err
			}
		}
	}

	c.logger.Debug("Seek to %s found=%t", rangeStart(r), c.hasTop)
	c.metrics.RecordSeek(context.Background(), time.Since(start), c.hasTop)
	if c.stats != nil {
		c.stats.TrackOperationWithLatency(stats.OpSeek, uint64(time.Since(start).Nanoseconds()))
	}
	return nil
}

func rangeStart(r key.Range) string {
	if r.Start == nil {
		return "<start>"
	}
	return r.Start.String()
}

// Duplicate returns an independent combiner over a duplicate of the source,
// positioned at the same record. The reducer is shared.
func (c *Combiner) Duplicate() iterator.SortedSource {
	dup := &Combiner{
		source:      c.source.Duplicate(),
		reducer:     c.reducer,
		reducerName: c.reducerName,
		options:     make(map[string]string, len(c.options)),
		logger:      c.logger,
		tel:         c.tel,
		metrics:     c.metrics,
		stats:       c.stats,
	}
	for k, v := range c.options {
		dup.options[k] = v
	}
	if c.hasTop {
		dup.topKey = c.topKey.Clone()
		dup.topValue = cloneBytes(c.topValue)
		dup.hasTop = true
	}
	return dup
}

// Close releases the source if it holds resources
func (c *Combiner) Close() error {
	c.clearTop()
	if closer, ok := c.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Options returns a copy of the validated reducer options
func (c *Combiner) Options() map[string]string {
	out := make(map[string]string, len(c.options))
	for k, v := range c.options {
		out[k] = v
	}
	return out
}

var _ iterator.SortedSource = (*Combiner)(nil)
