package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lock-access-monitor/backend/internal/storage"
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

func openLedger(t *testing.T) (*storage.DB, *storage.LedgerRepository) {
	t.Helper()

	db, err := storage.NewDB(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.RunMigrations(context.Background(), db))
	return db, storage.NewLedgerRepository(db)
}

func TestLedger_RecordAndListViolations(t *testing.T) {
	_, repo := openLedger(t)
	ctx := context.Background()
	detected := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	id1, err := repo.RecordViolation(ctx, models.Violation{
		SubjectID:   "owner-1",
		LockID:      "L1",
		Type:        models.ViolationUnauthorizedAccess,
		Description: "Unauthorized access attempt detected with 91.0% confidence",
		Confidence:  91,
		DetectedAt:  detected,
	})
	require.NoError(t, err)
	id2, err := repo.RecordViolation(ctx, models.Violation{
		SubjectID: "owner-2", LockID: "L2", Type: models.ViolationUnauthorizedAccess, Confidence: 75, DetectedAt: detected,
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	all, err := repo.ListViolations(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, "owner-1", all[0].SubjectID)
	assert.InDelta(t, 91, all[0].Confidence, 0.001)
	assert.True(t, detected.Equal(all[0].DetectedAt))

	l2, err := repo.ListViolations(ctx, "L2")
	require.NoError(t, err)
	require.Len(t, l2, 1)
	assert.Equal(t, id2, l2[0].ID)

	none, err := repo.ListViolations(ctx, "L9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_RecordViolationRequiresLockAndType(t *testing.T) {
	_, repo := openLedger(t)

	_, err := repo.RecordViolation(context.Background(), models.Violation{Type: "x"})
	assert.Error(t, err)
	_, err = repo.RecordViolation(context.Background(), models.Violation{LockID: "L1"})
	assert.Error(t, err)
}

func TestLedger_RecordEvents(t *testing.T) {
	_, repo := openLedger(t)
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	conf := 88.5

	_, err := repo.RecordEvent(ctx, models.HistoryEntry{LockID: "L1", EventType: models.EventGrantIssued, ActorID: "tenant-1", Timestamp: at})
	require.NoError(t, err)
	_, err = repo.RecordEvent(ctx, models.HistoryEntry{LockID: "L1", EventType: models.EventUnauthorizedAccessDetected, ActorID: "owner-1", Timestamp: at.Add(time.Minute), Confidence: &conf})
	require.NoError(t, err)

	events, err := repo.ListEvents(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventGrantIssued, events[0].EventType)
	assert.Nil(t, events[0].Confidence)
	assert.Equal(t, models.EventUnauthorizedAccessDetected, events[1].EventType)
	require.NotNil(t, events[1].Confidence)
	assert.InDelta(t, 88.5, *events[1].Confidence, 0.001)
}

func TestLedger_IsAppendOnly(t *testing.T) {
	db, repo := openLedger(t)
	ctx := context.Background()

	_, err := repo.RecordViolation(ctx, models.Violation{LockID: "L1", Type: "unauthorized_access", DetectedAt: time.Now()})
	require.NoError(t, err)
	_, err = repo.RecordEvent(ctx, models.HistoryEntry{LockID: "L1", EventType: models.EventDoorLocked, ActorID: "a", Timestamp: time.Now()})
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "UPDATE violations SET description = 'edited'")
	assert.ErrorContains(t, err, "append-only")
	_, err = db.ExecContext(ctx, "DELETE FROM violations")
	assert.ErrorContains(t, err, "append-only")
	_, err = db.ExecContext(ctx, "DELETE FROM ledger_events")
	assert.ErrorContains(t, err, "append-only")
}

func TestRunMigrations_IsIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	db, err := storage.NewDB(path)
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(ctx, db))
	require.NoError(t, db.Close())

	db, err = storage.NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.RunMigrations(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, path, db.Path())
}
