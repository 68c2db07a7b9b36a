package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

func newTestStore(t *testing.T) (*Store, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core)), logs
}

func pendingScan(id string, created time.Time) schemas.Scan {
	return schemas.Scan{
		ID:        id,
		Target:    "example.com",
		ScanType:  schemas.ScanTypeBasic,
		Status:    schemas.ScanStatusPending,
		CreatedAt: created,
	}
}

func TestCreateAndGetScan(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.CreateScan(pendingScan("a", now)))
	err := s.CreateScan(pendingScan("a", now))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))

	got, err := s.GetScan("a")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Target)

	_, err = s.GetScan("missing")
	assert.True(t, schemas.IsNotFound(err))
}

func TestListScans_CreationOrderAndCopies(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateScan(pendingScan(fmt.Sprintf("scan-%d", i), now)))
	}

	list := s.ListScans()
	require.Len(t, list, 3)
	assert.Equal(t, "scan-0", list[0].ID)
	assert.Equal(t, "scan-2", list[2].ID)

	list[0].Target = "mutated"
	got, _ := s.GetScan("scan-0")
	assert.Equal(t, "example.com", got.Target, "list results must not alias store state")
}

func TestUpdateScan(t *testing.T) {
	t.Parallel()

	t.Run("commits on success", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.CreateScan(pendingScan("a", time.Now())))

		updated, err := s.UpdateScan("a", func(sc *schemas.Scan) error {
			sc.Status = schemas.ScanStatusRunning
			sc.Progress = 10
			sc.CurrentStep = "Performing network discovery..."
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10, updated.Progress)

		got, _ := s.GetScan("a")
		assert.Equal(t, schemas.ScanStatusRunning, got.Status)
		assert.Equal(t, "Performing network discovery...", got.CurrentStep)
	})

	t.Run("discards on error", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.CreateScan(pendingScan("a", time.Now())))

		boom := errors.New("boom")
		_, err := s.UpdateScan("a", func(sc *schemas.Scan) error {
			sc.Progress = 50
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, _ := s.GetScan("a")
		assert.Zero(t, got.Progress)
	})

	t.Run("cannot change the id", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.CreateScan(pendingScan("a", time.Now())))
		_, err := s.UpdateScan("a", func(sc *schemas.Scan) error {
			sc.ID = "b"
			return nil
		})
		require.NoError(t, err)
		_, err = s.GetScan("a")
		assert.NoError(t, err)
	})

	t.Run("rejects terminal scans", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.CreateScan(pendingScan("a", time.Now())))
		_, err := s.UpdateScan("a", func(sc *schemas.Scan) error {
			sc.Status = schemas.ScanStatusCompleted
			sc.Progress = 100
			return nil
		})
		require.NoError(t, err)

		called := false
		_, err = s.UpdateScan("a", func(sc *schemas.Scan) error {
			called = true
			return nil
		})
		assert.True(t, schemas.IsInvalidState(err))
		assert.False(t, called)
	})

	t.Run("unknown id", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.UpdateScan("nope", func(*schemas.Scan) error { return nil })
		assert.True(t, schemas.IsNotFound(err))
	})
}

func TestUpdateScan_ConcurrentClaimHasOneWinner(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	require.NoError(t, s.CreateScan(pendingScan("a", time.Now())))

	errClaimed := errors.New("claimed")
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateScan("a", func(sc *schemas.Scan) error {
				if sc.Status != schemas.ScanStatusPending {
					return errClaimed
				}
				sc.Status = schemas.ScanStatusRunning
				return nil
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestReports(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	r := schemas.Report{ID: "r1", ScanID: "a", RemediationSteps: []string{"[HIGH] patch"}, CreatedAt: time.Now()}

	require.NoError(t, s.AppendReport(r))
	assert.ErrorIs(t, s.AppendReport(r), ErrDuplicateID)

	got, err := s.GetReport("r1")
	require.NoError(t, err)
	got.RemediationSteps[0] = "mutated"

	again, _ := s.GetReport("r1")
	assert.Equal(t, "[HIGH] patch", again.RemediationSteps[0])

	_, err = s.GetReport("r2")
	assert.True(t, schemas.IsNotFound(err))
	assert.Len(t, s.ListReports(), 1)
}

func TestDeleteOlderThan(t *testing.T) {
	t.Parallel()
	s, logs := newTestStore(t)
	now := time.Now()
	old := now.Add(-25 * time.Hour)

	require.NoError(t, s.CreateScan(pendingScan("old", old)))
	require.NoError(t, s.CreateScan(pendingScan("new", now)))
	require.NoError(t, s.AppendReport(schemas.Report{ID: "r-old", CreatedAt: old}))
	require.NoError(t, s.AppendReport(schemas.Report{ID: "r-new", CreatedAt: now}))

	scans, reports := s.DeleteOlderThan(now.Add(-24 * time.Hour))
	assert.Equal(t, 1, scans)
	assert.Equal(t, 1, reports)

	list := s.ListScans()
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)
	_, err := s.GetReport("r-old")
	assert.True(t, schemas.IsNotFound(err))
	assert.Equal(t, 1, logs.FilterMessage("Deleted expired entries").Len())

	scans, reports = s.DeleteOlderThan(now.Add(-24 * time.Hour))
	assert.Zero(t, scans)
	assert.Zero(t, reports)
}
