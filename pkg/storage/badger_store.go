package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"page-replica/pkg/log"
	"page-replica/pkg/utils"
)

const (
	assetKeyPrefix = "asset:" // Prefix for asset entries: asset:<jobID>:<refKey>
)

// NewJobID returns a fresh job identifier whose prefix encodes its creation
// time, so the sweep can age out entries for jobs that were never cleared.
func NewJobID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.New().String())
}

// jobIDCreatedAt extracts the creation time encoded in a job id.
// Returns zero time for ids it cannot decode.
func jobIDCreatedAt(jobID string) time.Time {
	idx := strings.Index(jobID, "-")
	if idx <= 0 {
		return time.Time{}
	}
	nanos, err := strconv.ParseInt(jobID[:idx], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// BadgerStore implements the JobStore interface using an in-memory BadgerDB.
// Every entry carries a TTL equal to the retention window as a second layer
// of protection on top of the explicit Clear at job end and the sweep.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	log       *logrus.Entry
}

var _ JobStore = (*BadgerStore)(nil)

// NewBadgerStore initializes and returns a new in-memory BadgerStore
func NewBadgerStore(retention time.Duration, logger *logrus.Entry) (*BadgerStore, error) {
	logger.Info("Initializing in-memory asset store...")

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("Asset store initialized.")
	return &BadgerStore{
		db:        db,
		retention: retention,
		log:       logger,
	}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrStore, maxConflictRetries)
}

// entryKey builds the full DB key for one asset reference of one job
func entryKey(jobID, refKey string) []byte {
	return []byte(assetKeyPrefix + jobID + ":" + refKey)
}

// jobPrefix is the key prefix shared by all entries of one job
func jobPrefix(jobID string) []byte {
	return []byte(assetKeyPrefix + jobID + ":")
}

// Put stores an inlined value under refKey for jobID
func (s *BadgerStore) Put(jobID, refKey, value string) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		entry := badger.NewEntry(entryKey(jobID, refKey), []byte(value))
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return utils.WrapErrorf(utils.ErrStore, "storing asset '%s' for job '%s'", refKey, jobID)
	}
	return nil
}

// GetAll returns a snapshot of the asset map for jobID
func (s *BadgerStore) GetAll(jobID string) (map[string]string, error) {
	result := make(map[string]string)
	prefix := jobPrefix(jobID)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			refKey := strings.TrimPrefix(string(item.Key()), string(prefix))
			err := item.Value(func(val []byte) error {
				result[refKey] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrStore, "reading asset map for job '%s'", jobID)
	}
	return result, nil
}

// Clear discards every entry belonging to jobID
func (s *BadgerStore) Clear(jobID string) error {
	prefix := jobPrefix(jobID)

	// Collect keys first; deleting while iterating invalidates the iterator
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return utils.WrapErrorf(utils.ErrStore, "scanning entries for job '%s'", jobID)
	}

	for _, key := range keys {
		if err := s.dbUpdate(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return utils.WrapErrorf(utils.ErrStore, "clearing job '%s'", jobID)
		}
	}

	s.log.WithFields(logrus.Fields{"job_id": jobID, "entries": len(keys)}).Debug("Cleared job entries")
	return nil
}

// EntryCount returns the total number of live entries across all jobs
func (s *BadgerStore) EntryCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(assetKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, utils.WrapErrorf(utils.ErrStore, "counting entries")
	}
	return count, nil
}

// RunSweep periodically removes entries whose job id encodes a creation time
// older than the retention window. Pure safety net against leaked jobs; the
// happy path clears explicitly at job end.
func (s *BadgerStore) RunSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Debug("Store sweep disabled (interval <= 0)")
		return
	}
	sweepLog := s.log.WithField("component", "sweep")
	sweepLog.Infof("Starting asset store sweep (interval: %v, retention: %v)", interval, s.retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sweepLog.Info("Stopping asset store sweep")
			return
		case <-ticker.C:
			if removed := s.sweepOnce(time.Now()); removed > 0 {
				sweepLog.WithField("removed", removed).Warn("Sweep reclaimed entries from uncleaned jobs")
			}
		}
	}
}

// sweepOnce removes entries for jobs older than the retention window and
// returns how many entries it deleted.
func (s *BadgerStore) sweepOnce(now time.Time) int {
	cutoff := now.Add(-s.retention)

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(assetKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, assetKeyPrefix)
			// Job id runs up to the separator before the ref key; its leading
			// segment is the creation timestamp
			created := jobIDCreatedAt(rest)
			if !created.IsZero() && created.Before(cutoff) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		s.log.Errorf("Sweep scan failed: %v", err)
		return 0
	}

	removed := 0
	for _, key := range stale {
		if err := s.dbUpdate(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			s.log.Errorf("Sweep delete failed for key '%s': %v", key, err)
			continue
		}
		removed++
	}
	return removed
}

// Close cleanly closes the database
func (s *BadgerStore) Close() error {
	s.log.Info("Closing asset store...")
	return s.db.Close()
}
