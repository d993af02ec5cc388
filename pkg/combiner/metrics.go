// ABOUTME: Combiner telemetry metrics interface and implementation for tracking merged-view operations
// ABOUTME: Provides instrumentation for seeks, group reductions, skipped records and deletion markers

package combiner

import (
	"context"
	"time"

	"github.com/KevoDB/combiner/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Metrics defines the interface for combiner telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type Metrics interface {
	telemetry.ComponentMetrics

	// RecordSeek records a repositioning of the combiner and whether it found a top.
	RecordSeek(ctx context.Context, duration time.Duration, found bool)

	// RecordNext records an advance of the combiner.
	RecordNext(ctx context.Context, duration time.Duration, valid bool)

	// RecordGroup records one reduced group: records handed to the reducer and
	// records skipped after it returned.
	RecordGroup(ctx context.Context, duration time.Duration, reduced, skipped int)

	// RecordTombstone records deletion markers and the records they shadowed.
	RecordTombstone(ctx context.Context, shadowed int)

	// RecordReductionError records a reducer failure.
	RecordReductionError(ctx context.Context)
}

// combinerMetrics implements Metrics using the telemetry interface.
type combinerMetrics struct {
	tel     telemetry.Telemetry
	reducer string
}

// NewMetrics creates a new combiner metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewMetrics(tel telemetry.Telemetry, reducerName string) Metrics {
	if tel == nil {
		return &noopMetrics{}
	}
	return &combinerMetrics{tel: tel, reducer: reducerName}
}

// NewNoopMetrics creates a no-op combiner metrics implementation for testing.
func NewNoopMetrics() Metrics {
	return &noopMetrics{}
}

func (m *combinerMetrics) attrs(op string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCombiner),
		attribute.String(telemetry.AttrOperationType, op),
		attribute.String(telemetry.AttrReducer, m.reducer),
	}
}

// RecordSeek records seek operation metrics.
func (m *combinerMetrics) RecordSeek(ctx context.Context, duration time.Duration, found bool) {
	attrs := m.attrs(telemetry.OpTypeSeek)
	m.tel.RecordHistogram(ctx, "combiner.seek.duration", duration.Seconds(),
		append(attrs, attribute.Bool("found", found))...,
	)
	m.tel.RecordCounter(ctx, "combiner.operations.total", 1,
		append(attrs, attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess))...,
	)
}

// RecordNext records Next() operation metrics.
func (m *combinerMetrics) RecordNext(ctx context.Context, duration time.Duration, valid bool) {
	attrs := m.attrs(telemetry.OpTypeNext)
	m.tel.RecordHistogram(ctx, "combiner.next.duration", duration.Seconds(),
		append(attrs, attribute.Bool("valid", valid))...,
	)
	m.tel.RecordCounter(ctx, "combiner.operations.total", 1,
		append(attrs, attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess))...,
	)
}

// RecordGroup records group reduction metrics.
func (m *combinerMetrics) RecordGroup(ctx context.Context, duration time.Duration, reduced, skipped int) {
	attrs := m.attrs(telemetry.OpTypeReduce)
	m.tel.RecordHistogram(ctx, "combiner.reduce.duration", duration.Seconds(), attrs...)
	m.tel.RecordHistogram(ctx, "combiner.group.size", float64(reduced+skipped), attrs...)
	m.tel.RecordCounter(ctx, "combiner.records.reduced", int64(reduced), attrs...)

	// Records the reducer left unread
	if skipped > 0 {
		m.tel.RecordCounter(ctx, "combiner.records.skipped", int64(skipped), attrs...)
	}
}

// RecordTombstone records a deletion marker and the older versions it hid.
func (m *combinerMetrics) RecordTombstone(ctx context.Context, shadowed int) {
	attrs := m.attrs(telemetry.OpTypeNext)
	m.tel.RecordCounter(ctx, "combiner.tombstones.total", 1, attrs...)
	if shadowed > 0 {
		m.tel.RecordCounter(ctx, "combiner.tombstones.shadowed", int64(shadowed), attrs...)
	}
}

// RecordReductionError records a failed reduction.
func (m *combinerMetrics) RecordReductionError(ctx context.Context) {
	m.tel.RecordCounter(ctx, "combiner.operations.total", 1,
		append(m.attrs(telemetry.OpTypeReduce),
			attribute.String(telemetry.AttrStatus, telemetry.StatusError),
			attribute.String(telemetry.AttrErrorType, "reduction"),
		)...,
	)
}

// Close releases any resources held by the metrics implementation.
func (m *combinerMetrics) Close() error {
	return nil
}

// noopMetrics provides a no-operation implementation for testing and disabled scenarios.
type noopMetrics struct{}

func (n *noopMetrics) RecordSeek(ctx context.Context, duration time.Duration, found bool) {}

func (n *noopMetrics) RecordNext(ctx context.Context, duration time.Duration, valid bool) {}

func (n *noopMetrics) RecordGroup(ctx context.Context, duration time.Duration, reduced, skipped int) {
}

func (n *noopMetrics) RecordTombstone(ctx context.Context, shadowed int) {}

func (n *noopMetrics) RecordReductionError(ctx context.Context) {}

func (n *noopMetrics) Close() error { return nil }
