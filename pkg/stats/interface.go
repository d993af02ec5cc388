package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackGroup records one reduced group
	TrackGroup(reduced, skipped uint64)

	// TrackTombstone records a deletion marker and the records it shadowed
	TrackTombstone(shadowed uint64)

	// TrackStoreSize records the current number of stored records
	TrackStoreSize(records uint64)

	// StartLoad initializes snapshot load statistics
	StartLoad() time.Time

	// FinishLoad completes snapshot load statistics
	FinishLoad(startTime time.Time, recordsLoaded, framesRejected uint64)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
