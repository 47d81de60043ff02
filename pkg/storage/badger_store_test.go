package storage

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store, err := NewBadgerStore(time.Hour, logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewJobID_EncodesAge(t *testing.T) {
	before := time.Now()
	id := NewJobID()
	after := time.Now()

	created := jobIDCreatedAt(id)
	require.False(t, created.IsZero(), "job id must encode its creation time")
	assert.False(t, created.Before(before.Add(-time.Second)))
	assert.False(t, created.After(after.Add(time.Second)))
}

func TestJobIDCreatedAt_Undecodable(t *testing.T) {
	assert.True(t, jobIDCreatedAt("").IsZero())
	assert.True(t, jobIDCreatedAt("no-timestamp-here").IsZero())
	assert.True(t, jobIDCreatedAt("-leading").IsZero())
}

func TestPutGetAll(t *testing.T) {
	store := newTestStore(t)
	jobID := NewJobID()

	require.NoError(t, store.Put(jobID, "/a.png", "data:image/png;base64,AA=="))
	require.NoError(t, store.Put(jobID, "https://example.com/a.png", "data:image/png;base64,AA=="))
	require.NoError(t, store.Put(jobID, "b.css", "body{color:red}"))

	got, err := store.GetAll(jobID)
	require.NoError(t, err)

	assert.Len(t, got, 3)
	assert.Equal(t, "data:image/png;base64,AA==", got["/a.png"])
	assert.Equal(t, "data:image/png;base64,AA==", got["https://example.com/a.png"])
	assert.Equal(t, "body{color:red}", got["b.css"])
}

func TestGetAll_EmptyJob(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetAll(NewJobID())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPut_OverwriteSameKey(t *testing.T) {
	store := newTestStore(t)
	jobID := NewJobID()

	require.NoError(t, store.Put(jobID, "k", "first"))
	require.NoError(t, store.Put(jobID, "k", "second"))

	got, err := store.GetAll(jobID)
	require.NoError(t, err)
	assert.Equal(t, "second", got["k"])
}

func TestClear_RemovesOnlyOwnJob(t *testing.T) {
	store := newTestStore(t)
	jobA := NewJobID()
	jobB := NewJobID()

	require.NoError(t, store.Put(jobA, "x", "1"))
	require.NoError(t, store.Put(jobB, "x", "2"))

	require.NoError(t, store.Clear(jobA))

	gotA, err := store.GetAll(jobA)
	require.NoError(t, err)
	assert.Empty(t, gotA)

	gotB, err := store.GetAll(jobB)
	require.NoError(t, err)
	assert.Equal(t, "2", gotB["x"])
}

func TestClear_Idempotent(t *testing.T) {
	store := newTestStore(t)
	jobID := NewJobID()

	require.NoError(t, store.Put(jobID, "x", "1"))
	require.NoError(t, store.Clear(jobID))
	require.NoError(t, store.Clear(jobID), "clearing an already-cleared job must not error")
}

func TestJobIsolation_Concurrent(t *testing.T) {
	store := newTestStore(t)

	const jobs = 8
	const entriesPerJob = 25

	var wg sync.WaitGroup
	jobIDs := make([]string, jobs)
	for i := range jobIDs {
		jobIDs[i] = NewJobID()
	}

	for i, jobID := range jobIDs {
		wg.Add(1)
		go func(i int, jobID string) {
			defer wg.Done()
			for n := 0; n < entriesPerJob; n++ {
				// Identical keys across jobs on purpose
				key := fmt.Sprintf("https://example.com/asset-%d.png", n)
				value := fmt.Sprintf("job-%d-value-%d", i, n)
				if err := store.Put(jobID, key, value); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(i, jobID)
	}
	wg.Wait()

	// Every job sees exactly its own entries even though keys collide
	for i, jobID := range jobIDs {
		got, err := store.GetAll(jobID)
		require.NoError(t, err)
		assert.Len(t, got, entriesPerJob)
		for key, value := range got {
			assert.True(t, strings.HasPrefix(value, fmt.Sprintf("job-%d-", i)),
				"job %d observed foreign value %q under key %q", i, value, key)
		}
	}
}

func TestEntryCount(t *testing.T) {
	store := newTestStore(t)
	jobID := NewJobID()

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, store.Put(jobID, "a", "1"))
	require.NoError(t, store.Put(jobID, "b", "2"))

	count, err = store.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSweepOnce_RemovesOnlyExpiredJobs(t *testing.T) {
	store := newTestStore(t)

	// Forge a job id stamped two hours in the past
	oldID := fmt.Sprintf("%d-%s", time.Now().Add(-2*time.Hour).UnixNano(), uuid.New().String())
	freshID := NewJobID()

	require.NoError(t, store.Put(oldID, "stale.png", "data:..."))
	require.NoError(t, store.Put(freshID, "fresh.png", "data:..."))

	removed := store.sweepOnce(time.Now())
	assert.Equal(t, 1, removed)

	gotOld, err := store.GetAll(oldID)
	require.NoError(t, err)
	assert.Empty(t, gotOld)

	gotFresh, err := store.GetAll(freshID)
	require.NoError(t, err)
	assert.Len(t, gotFresh, 1)
}
