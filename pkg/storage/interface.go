package storage

import (
	"context"
	"time"
)

// AssetStore is the transient per-job mapping from asset reference text
// (original and absolute forms) to inlined data. Entries are visible only to
// their owning job and must be cleared exactly once when the job finishes,
// success or failure.
type AssetStore interface {
	// Put stores an inlined value under an arbitrary string key for jobID.
	// Multiple keys may point at the same value (dual-keying by original and
	// absolute reference text).
	Put(jobID, key, value string) error

	// GetAll returns a snapshot of every key/value pair stored for jobID.
	GetAll(jobID string) (map[string]string, error)

	// Clear discards all entries for jobID.
	Clear(jobID string) error
}

// StoreAdmin handles lifecycle and maintenance operations
type StoreAdmin interface {
	// RunSweep periodically reclaims entries belonging to jobs older than the
	// retention window. It is a safety net against jobs that were never
	// explicitly cleared, not part of the happy path. Blocks until ctx is done;
	// run it in a goroutine.
	RunSweep(ctx context.Context, interval time.Duration)

	// EntryCount returns the total number of live entries across all jobs.
	EntryCount() (int, error)

	// Close cleanly closes the underlying database.
	Close() error
}

// JobStore combines the store interfaces for components that need full access
type JobStore interface {
	AssetStore
	StoreAdmin
}
