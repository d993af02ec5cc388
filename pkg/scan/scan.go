// Package scan drives sorted sources: collecting a range into memory and
// splitting a scan into row ranges that run concurrently on duplicates of
// one source.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/KevoDB/combiner/pkg/stats"
	"github.com/KevoDB/combiner/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the sub-scans Parallel runs at once
const DefaultConcurrency = 8

// Option configures a Scanner
type Option func(*Scanner)

// WithConcurrency bounds the number of concurrent sub-scans
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the scanner's logger
func WithLogger(logger log.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithTelemetry records scan spans and counters through tel
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *Scanner) {
		s.tel = tel
	}
}

// WithStats tracks scans in collector
func WithStats(collector stats.Collector) Option {
	return func(s *Scanner) {
		s.stats = collector
	}
}

// Scanner runs scans over sorted sources
type Scanner struct {
	concurrency int
	logger      log.Logger
	tel         telemetry.Telemetry
	stats       stats.Collector
}

// NewScanner creates a scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetDefaultLogger()
	}
	s.logger = s.logger.WithField("component", telemetry.ComponentScan)
	if s.tel == nil {
		s.tel = telemetry.NewNoop()
	}
	return s
}

// Collect seeks src to r and copies up to limit records; a limit of zero or
// less collects the whole range
func (s *Scanner) Collect(ctx context.Context, src iterator.SortedSource, r key.Range, families [][]byte, inclusive bool, limit int) ([]iterator.Record, error) {
	ctx, span := s.tel.StartSpan(ctx, "scan.collect")
	defer span.End()
	start := time.Now()

	if err := src.Seek(r, families, inclusive); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out []iterator.Record
	err := drain(ctx, src, func(rec iterator.Record) error {
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			return errLimit
		}
		return nil
	})
	if errors.Is(err, errLimit) {
		err = nil
	}
	if err != nil {
		span.RecordError(err)
		return out, err
	}

	s.record(ctx, start, int64(len(out)), 1)
	return out, nil
}

// errLimit stops drain once Collect has enough records
var errLimit = errors.New("scan limit reached")

// Parallel scans every range on its own duplicate of src. fn receives the
// index of the range and each record; calls for one range are sequential,
// calls for different ranges may run concurrently. The first error cancels
// the remaining sub-scans and is returned.
func (s *Scanner) Parallel(ctx context.Context, src iterator.SortedSource, ranges []key.Range, families [][]byte, inclusive bool, fn func(i int, rec iterator.Record) error) error {
	ctx, span := s.tel.StartSpan(ctx, "scan.parallel", attribute.Int("ranges", len(ranges)))
	defer span.End()
	start := time.Now()

	// src is not safe for concurrent use, so every duplicate is taken here
	sources := make([]iterator.SortedSource, len(ranges))
	for i := range ranges {
		sources[i] = src.Duplicate()
	}
	defer func() {
		for _, dup := range sources {
			if c, ok := dup.(io.Closer); ok {
				if err := c.Close(); err != nil {
					s.logger.Warn("Failed to close sub-scan source: %v", err)
				}
			}
		}
	}()

	counts := make([]int64, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			dup := sources[i]
			if err := dup.Seek(r, families, inclusive); err != nil {
				return fmt.Errorf("sub-scan %d: %w", i, err)
			}
			return drain(gctx, dup, func(rec iterator.Record) error {
				counts[i]++
				return fn(i, rec)
			})
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		s.logger.Debug("Parallel scan over %d ranges failed: %v", len(ranges), err)
		return err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	s.record(ctx, start, total, len(ranges))
	return nil
}

func (s *Scanner) record(ctx context.Context, start time.Time, records int64, ranges int) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentScan),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeScan),
	}
	telemetry.RecordDuration(ctx, s.tel, "scan.duration", start, attrs...)
	s.tel.RecordCounter(ctx, "scan.records", records, attrs...)
	s.tel.RecordCounter(ctx, "scan.ranges", int64(ranges), attrs...)

	if s.stats != nil {
		s.stats.TrackOperationWithLatency(stats.OpScan, uint64(time.Since(start).Nanoseconds()))
	}
}

// drain hands copies of the remaining records of src to fn, checking ctx
// between records
func drain(ctx context.Context, src iterator.SortedSource, fn func(iterator.Record) error) error {
	for src.Valid() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, _ := iterator.CurrentRecord(src)
		if err := fn(rec); err != nil {
			return err
		}
		if err := src.Next(); err != nil {
			return err
		}
	}
	return nil
}

// SplitRows turns sorted split rows into contiguous row ranges covering
// every key: (-inf, s1), [s1, s2), ..., [sn, +inf). Ranges end exclusively
// at the smallest key of the next split row, so no row is split.
func SplitRows(splits [][]byte) []key.Range {
	bound := func(row []byte) *key.Key {
		return &key.Key{Row: append([]byte(nil), row...), Version: key.MaxVersion, Deleted: true}
	}

	ranges := make([]key.Range, 0, len(splits)+1)
	var prev *key.Key
	for _, split := range splits {
		end := bound(split)
		ranges = append(ranges, key.Range{Start: prev, StartInclusive: true, End: end})
		prev = end
	}
	return append(ranges, key.Range{Start: prev, StartInclusive: true, EndInclusive: true})
}
