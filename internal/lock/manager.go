package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lock-access-monitor/backend/internal/history"
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// GrantPolicy decides what Grant does when the lock already holds a grant.
type GrantPolicy string

const (
	// PolicyReplace overwrites the existing grant.
	PolicyReplace GrantPolicy = "replace"
	// PolicyReject fails with ErrAlreadyExists while an unexpired grant exists.
	PolicyReject GrantPolicy = "reject"
)

// ParseGrantPolicy converts a configuration value into a GrantPolicy.
func ParseGrantPolicy(s string) (GrantPolicy, error) {
	switch GrantPolicy(s) {
	case PolicyReplace, PolicyReject:
		return GrantPolicy(s), nil
	case "":
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("%w: unknown grant policy %q", ErrInvalidArgument, s)
	}
}

// EventRecorder durably records history events outside the process, returning
// a correlation id.
type EventRecorder interface {
	RecordEvent(ctx context.Context, entry models.HistoryEntry) (string, error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Policy GrantPolicy

	// ReleaseGrantOnLock clears the grant after a successful Lock.
	ReleaseGrantOnLock bool

	// Recorder receives a copy of every event. Optional.
	Recorder EventRecorder

	// RecordTimeout bounds each Recorder call. Defaults to 5s.
	RecordTimeout time.Duration

	Logger *log.Logger

	// Now and NewToken are overridable for tests.
	Now      func() time.Time
	NewToken func() string
}

// Manager issues, validates, consumes and revokes access grants.
// All mutations of a lock happen inside the registry's per-lock critical
// section, and the history entries they produce are appended there too.
type Manager struct {
	registry *Registry
	history  history.Log

	policy        GrantPolicy
	releaseOnLock bool
	recorder      EventRecorder
	recordTimeout time.Duration
	logger        *log.Logger
	now           func() time.Time
	newToken      func() string
}

// NewManager creates a new grant manager over the given registry and history log.
func NewManager(registry *Registry, hist history.Log, cfg ManagerConfig) *Manager {
	m := &Manager{
		registry:      registry,
		history:       hist,
		policy:        cfg.Policy,
		releaseOnLock: cfg.ReleaseGrantOnLock,
		recorder:      cfg.Recorder,
		recordTimeout: cfg.RecordTimeout,
		logger:        cfg.Logger,
		now:           cfg.Now,
		newToken:      cfg.NewToken,
	}

	if m.policy == "" {
		m.policy = PolicyReplace
	}
	if m.recordTimeout <= 0 {
		m.recordTimeout = 5 * time.Second
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newToken == nil {
		m.newToken = uuid.NewString
	}

	return m
}

// Grant issues a new grant for subjectID on the lock, valid until validUntil.
func (m *Manager) Grant(ctx context.Context, lockID, subjectID string, validUntil time.Time) (models.AccessGrant, error) {
	if subjectID == "" {
		return models.AccessGrant{}, fmt.Errorf("%w: subject id is required", ErrInvalidArgument)
	}

	var (
		grant  models.AccessGrant
		issued models.HistoryEntry
	)
	err := m.registry.update(lockID, func(l *models.Lock) error {
		now := m.now()
		if !validUntil.After(now) {
			return fmt.Errorf("%w: valid_until must be after the issue time", ErrInvalidArgument)
		}
		if m.policy == PolicyReject && l.CurrentGrant != nil && !l.CurrentGrant.ExpiredAt(now) {
			return fmt.Errorf("%w: lock %s already has an active grant", ErrAlreadyExists, l.ID)
		}

		grant = models.AccessGrant{
			Token:      m.newToken(),
			SubjectID:  subjectID,
			IssuedAt:   now,
			ValidUntil: validUntil,
		}
		g := grant
		setGrant(l, &g)
		issued = m.append(l.ID, models.EventGrantIssued, subjectID, now)
		return nil
	})
	if err != nil {
		return models.AccessGrant{}, err
	}

	m.forward(ctx, issued)
	return grant, nil
}

// Revoke removes the lock's grant if token matches it and re-locks the door.
func (m *Manager) Revoke(ctx context.Context, lockID, token string) error {
	var revoked models.HistoryEntry
	err := m.registry.update(lockID, func(l *models.Lock) error {
		if l.CurrentGrant == nil {
			return fmt.Errorf("%w: lock %s has no active grant", ErrInvalidToken, l.ID)
		}
		if l.CurrentGrant.Token != token {
			return fmt.Errorf("%w: token does not match the grant on lock %s", ErrInvalidToken, l.ID)
		}

		now := m.now()
		subject := l.CurrentGrant.SubjectID
		setGrant(l, nil)
		setPhysicalState(l, models.StateLocked, now)
		revoked = m.append(l.ID, models.EventGrantRevoked, subject, now)
		return nil
	})
	if err != nil {
		return err
	}

	m.forward(ctx, revoked)
	return nil
}

// Validate checks token against the lock's current grant. An invalid token is
// reported in the result and leaves history untouched; a valid one appends
// an access_validated entry.
func (m *Manager) Validate(ctx context.Context, lockID, token string) (models.ValidationResult, error) {
	var (
		result    models.ValidationResult
		validated models.HistoryEntry
	)
	err := m.registry.update(lockID, func(l *models.Lock) error {
		now := m.now()
		result = validate(l, token, now)
		if result.Valid {
			validated = m.append(l.ID, models.EventAccessValidated, result.SubjectID, now)
		}
		return nil
	})
	if err != nil {
		return models.ValidationResult{}, err
	}

	if result.Valid {
		m.forward(ctx, validated)
	}
	return result, nil
}

// Unlock validates token and opens the door.
//
// The validation step appends its own access_validated entry, so a caller
// that validated first and then unlocks produces two access_validated
// entries followed by door_unlocked.
func (m *Manager) Unlock(ctx context.Context, lockID, token string) (models.Lock, error) {
	return m.actuate(ctx, lockID, token, models.StateUnlocked, models.EventDoorUnlocked)
}

// Lock validates token and closes the door.
func (m *Manager) Lock(ctx context.Context, lockID, token string) (models.Lock, error) {
	return m.actuate(ctx, lockID, token, models.StateLocked, models.EventDoorLocked)
}

func (m *Manager) actuate(ctx context.Context, lockID, token string, state models.PhysicalState, event models.EventType) (models.Lock, error) {
	var (
		after   models.Lock
		entries []models.HistoryEntry
		denied  *AccessDeniedError
	)
	err := m.registry.update(lockID, func(l *models.Lock) error {
		now := m.now()
		result := validate(l, token, now)
		if !result.Valid {
			denied = &AccessDeniedError{LockID: l.ID, Reason: result.Reason}
			return denied
		}

		entries = append(entries, m.append(l.ID, models.EventAccessValidated, result.SubjectID, now))
		setPhysicalState(l, state, now)
		entries = append(entries, m.append(l.ID, event, result.SubjectID, now))

		if state == models.StateLocked && m.releaseOnLock {
			setGrant(l, nil)
		}

		after = l.Clone()
		return nil
	})
	if denied != nil {
		// Denials stay out of the local history but are still reported to the ledger.
		m.forward(ctx, models.HistoryEntry{
			LockID:    lockID,
			EventType: models.EventAccessDenied,
			ActorID:   models.UnknownActor,
			Timestamp: m.now(),
		})
		return models.Lock{}, err
	}
	if err != nil {
		return models.Lock{}, err
	}

	m.forward(ctx, entries...)
	return after, nil
}

// Heartbeat records a battery report from the lock and refreshes LastSeen.
func (m *Manager) Heartbeat(ctx context.Context, lockID string, batteryLevel int) (models.Lock, error) {
	if batteryLevel < 0 || batteryLevel > 100 {
		return models.Lock{}, fmt.Errorf("%w: battery level %d outside [0,100]", ErrInvalidArgument, batteryLevel)
	}

	var after models.Lock
	err := m.registry.update(lockID, func(l *models.Lock) error {
		l.BatteryLevel = batteryLevel
		l.LastSeen = m.now()
		after = l.Clone()
		return nil
	})
	if err != nil {
		return models.Lock{}, err
	}
	return after, nil
}

// validate compares token with the grant held by l at time now.
func validate(l *models.Lock, token string, now time.Time) models.ValidationResult {
	grant := l.CurrentGrant
	switch {
	case grant == nil:
		return models.ValidationResult{Reason: models.ReasonNoActiveGrant}
	case grant.Token != token:
		return models.ValidationResult{Reason: models.ReasonTokenMismatch}
	case grant.ExpiredAt(now):
		return models.ValidationResult{Reason: models.ReasonExpired}
	}

	validUntil := grant.ValidUntil
	return models.ValidationResult{
		Valid:      true,
		SubjectID:  grant.SubjectID,
		ValidUntil: &validUntil,
	}
}

// append writes a history entry. Callers hold the lock's mutex.
func (m *Manager) append(lockID string, event models.EventType, actorID string, at time.Time) models.HistoryEntry {
	if actorID == "" {
		actorID = models.UnknownActor
	}
	e := models.HistoryEntry{
		LockID:    lockID,
		EventType: event,
		ActorID:   actorID,
		Timestamp: at,
	}
	m.history.Append(e)
	return e
}

// forward hands entries to the event recorder. Failures are logged only.
func (m *Manager) forward(ctx context.Context, entries ...models.HistoryEntry) {
	if m.recorder == nil {
		return
	}

	for _, e := range entries {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.recordTimeout)
		_, err := m.recorder.RecordEvent(callCtx, e)
		cancel()
		if err != nil {
			m.logger.Printf("Failed to record %s event for lock %s: %v", e.EventType, e.LockID, err)
		}
	}
}
