package lock_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lock-access-monitor/backend/internal/history"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// ── Helpers ──────────────────────────────────────────────────

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []models.HistoryEntry
	err    error
}

func (r *recorder) RecordEvent(_ context.Context, e models.HistoryEntry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.events = append(r.events, e)
	return fmt.Sprintf("evt-%d", len(r.events)), nil
}

func (r *recorder) Types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	registry *lock.Registry
	history  *history.MemoryLog
	manager  *lock.Manager
	clock    *clock
	recorder *recorder
}

func newFixture(t *testing.T, mutate func(*lock.ManagerConfig)) *fixture {
	t.Helper()

	f := &fixture{
		registry: lock.NewRegistry(),
		history:  history.NewMemoryLog(),
		clock:    newClock(),
		recorder: &recorder{},
	}

	n := 0
	cfg := lock.ManagerConfig{
		Recorder: f.recorder,
		Logger:   log.New(io.Discard, "", 0),
		Now:      f.clock.Now,
		NewToken: func() string {
			n++
			return fmt.Sprintf("tok-%d", n)
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.manager = lock.NewManager(f.registry, f.history, cfg)

	_, err := f.registry.Register("L1", "Door")
	require.NoError(t, err)
	return f
}

func (f *fixture) eventTypes(lockID string) []models.EventType {
	var out []models.EventType
	for _, e := range f.history.For(lockID) {
		out = append(out, e.EventType)
	}
	return out
}

// ── Grant ────────────────────────────────────────────────────

func TestGrant_IssuesTokenAndAppendsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "tok-1", g.Token)
	assert.Equal(t, "tenant-1", g.SubjectID)
	assert.True(t, g.ValidUntil.After(g.IssuedAt))

	l, err := f.registry.Get("L1")
	require.NoError(t, err)
	require.NotNil(t, l.CurrentGrant)
	assert.Equal(t, g, *l.CurrentGrant)

	entries := f.history.For("L1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventGrantIssued, entries[0].EventType)
	assert.Equal(t, "tenant-1", entries[0].ActorID)
}

func TestGrant_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := f.clock.Now()

	_, err := f.manager.Grant(ctx, "missing", "tenant-1", now.Add(time.Hour))
	assert.ErrorIs(t, err, lock.ErrNotFound)

	_, err = f.manager.Grant(ctx, "L1", "", now.Add(time.Hour))
	assert.ErrorIs(t, err, lock.ErrInvalidArgument)

	_, err = f.manager.Grant(ctx, "L1", "tenant-1", now)
	assert.ErrorIs(t, err, lock.ErrInvalidArgument)

	assert.Empty(t, f.history.For("L1"))
}

func TestGrant_ReplacesPriorGrant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	until := f.clock.Now().Add(time.Hour)

	first, err := f.manager.Grant(ctx, "L1", "tenant-1", until)
	require.NoError(t, err)
	second, err := f.manager.Grant(ctx, "L1", "tenant-2", until)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	res, err := f.manager.Validate(ctx, "L1", first.Token)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, models.ReasonTokenMismatch, res.Reason)

	res, err = f.manager.Validate(ctx, "L1", second.Token)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "tenant-2", res.SubjectID)
}

func TestGrant_RejectPolicy(t *testing.T) {
	f := newFixture(t, func(cfg *lock.ManagerConfig) {
		cfg.Policy = lock.PolicyReject
	})
	ctx := context.Background()

	_, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = f.manager.Grant(ctx, "L1", "tenant-2", f.clock.Now().Add(2*time.Hour))
	assert.ErrorIs(t, err, lock.ErrAlreadyExists)

	// Once expired the grant no longer blocks a new one.
	f.clock.Advance(time.Hour)
	_, err = f.manager.Grant(ctx, "L1", "tenant-2", f.clock.Now().Add(time.Hour))
	assert.NoError(t, err)
}

func TestParseGrantPolicy(t *testing.T) {
	p, err := lock.ParseGrantPolicy("")
	require.NoError(t, err)
	assert.Equal(t, lock.PolicyReplace, p)

	p, err = lock.ParseGrantPolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, lock.PolicyReject, p)

	_, err = lock.ParseGrantPolicy("merge")
	assert.ErrorIs(t, err, lock.ErrInvalidArgument)
}

// ── Validate ─────────────────────────────────────────────────

func TestValidate_ValidAppendsOneEntry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	res, err := f.manager.Validate(ctx, "L1", g.Token)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "tenant-1", res.SubjectID)
	require.NotNil(t, res.ValidUntil)
	assert.Equal(t, g.ValidUntil, *res.ValidUntil)

	assert.Equal(t, []models.EventType{models.EventGrantIssued, models.EventAccessValidated}, f.eventTypes("L1"))
}

func TestValidate_ExpiredAppendsNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	// Exactly at validUntil counts as expired.
	f.clock.Advance(time.Hour)
	res, err := f.manager.Validate(ctx, "L1", g.Token)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, models.ReasonExpired, res.Reason)

	assert.Equal(t, []models.EventType{models.EventGrantIssued}, f.eventTypes("L1"))
}

func TestValidate_UnknownLock(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.manager.Validate(context.Background(), "nope", "tok")
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

// ── Revoke ───────────────────────────────────────────────────

func TestRevoke_ThenValidateHasNoActiveGrant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.manager.Unlock(ctx, "L1", g.Token)
	require.NoError(t, err)

	require.NoError(t, f.manager.Revoke(ctx, "L1", g.Token))

	l, err := f.registry.Get("L1")
	require.NoError(t, err)
	assert.Nil(t, l.CurrentGrant)
	assert.Equal(t, models.StateLocked, l.PhysicalState)

	res, err := f.manager.Validate(ctx, "L1", g.Token)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, models.ReasonNoActiveGrant, res.Reason)

	types := f.eventTypes("L1")
	assert.Equal(t, models.EventGrantRevoked, types[len(types)-1])
}

func TestRevoke_InvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.manager.Revoke(ctx, "L1", "tok-1")
	assert.ErrorIs(t, err, lock.ErrInvalidToken)

	_, err = f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	err = f.manager.Revoke(ctx, "L1", "wrong")
	assert.ErrorIs(t, err, lock.ErrInvalidToken)

	err = f.manager.Revoke(ctx, "missing", "tok-1")
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

// ── Unlock / Lock ────────────────────────────────────────────

func TestUnlock_FullScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	res, err := f.manager.Validate(ctx, "L1", g.Token)
	require.NoError(t, err)
	require.True(t, res.Valid)

	l, err := f.manager.Unlock(ctx, "L1", g.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnlocked, l.PhysicalState)

	assert.Equal(t, []models.EventType{
		models.EventGrantIssued,
		models.EventAccessValidated,
		models.EventAccessValidated,
		models.EventDoorUnlocked,
	}, f.eventTypes("L1"))
	assert.Equal(t, f.eventTypes("L1"), f.recorder.Types())
}

func TestUnlock_WithoutGrantIsDenied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.Unlock(ctx, "L1", "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrAccessDenied)

	var denied *lock.AccessDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, models.ReasonNoActiveGrant, denied.Reason)

	l, err := f.registry.Get("L1")
	require.NoError(t, err)
	assert.Equal(t, models.StateLocked, l.PhysicalState)
	assert.Empty(t, f.history.For("L1"))

	// The denial still reaches the external ledger.
	assert.Equal(t, []models.EventType{models.EventAccessDenied}, f.recorder.Types())
}

func TestLock_RelocksAndOptionallyReleasesGrant(t *testing.T) {
	tests := []struct {
		name      string
		release   bool
		wantGrant bool
	}{
		{"keep grant", false, true},
		{"release grant", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(cfg *lock.ManagerConfig) {
				cfg.ReleaseGrantOnLock = tt.release
			})
			ctx := context.Background()

			g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
			require.NoError(t, err)
			_, err = f.manager.Unlock(ctx, "L1", g.Token)
			require.NoError(t, err)

			l, err := f.manager.Lock(ctx, "L1", g.Token)
			require.NoError(t, err)
			assert.Equal(t, models.StateLocked, l.PhysicalState)
			assert.Equal(t, tt.wantGrant, l.CurrentGrant != nil)

			types := f.eventTypes("L1")
			assert.Equal(t, models.EventDoorLocked, types[len(types)-1])
		})
	}
}

func TestLock_ExpiredTokenDenied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = f.manager.Unlock(ctx, "L1", g.Token)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.manager.Lock(ctx, "L1", g.Token)

	var denied *lock.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, models.ReasonExpired, denied.Reason)

	l, err := f.registry.Get("L1")
	require.NoError(t, err)
	assert.Equal(t, models.StateUnlocked, l.PhysicalState)
}

func TestUnlock_RecorderFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, nil)
	f.recorder.err = errors.New("ledger offline")
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.manager.Unlock(ctx, "L1", g.Token)
	assert.NoError(t, err)
}

// ── Heartbeat ────────────────────────────────────────────────

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.clock.Advance(time.Minute)
	l, err := f.manager.Heartbeat(ctx, "L1", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, l.BatteryLevel)
	assert.Equal(t, f.clock.Now(), l.LastSeen)

	_, err = f.manager.Heartbeat(ctx, "L1", 101)
	assert.ErrorIs(t, err, lock.ErrInvalidArgument)
	_, err = f.manager.Heartbeat(ctx, "missing", 50)
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

// ── Concurrency ──────────────────────────────────────────────

func TestManager_ConcurrentUnlockLockKeepsHistoryConsistent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	g, err := f.manager.Grant(ctx, "L1", "tenant-1", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				_, _ = f.manager.Unlock(ctx, "L1", g.Token)
			} else {
				_, _ = f.manager.Lock(ctx, "L1", g.Token)
			}
		}(i)
	}
	wg.Wait()

	entries := f.history.For("L1")
	require.Len(t, entries, 1+20*2)

	// Every door event is immediately preceded by its own validation.
	for i := 1; i < len(entries); i += 2 {
		assert.Equal(t, models.EventAccessValidated, entries[i].EventType)
		next := entries[i+1].EventType
		assert.True(t, next == models.EventDoorUnlocked || next == models.EventDoorLocked)
	}

	last := entries[len(entries)-1].EventType
	l, err := f.registry.Get("L1")
	require.NoError(t, err)
	if last == models.EventDoorUnlocked {
		assert.Equal(t, models.StateUnlocked, l.PhysicalState)
	} else {
		assert.Equal(t, models.StateLocked, l.PhysicalState)
	}
}
