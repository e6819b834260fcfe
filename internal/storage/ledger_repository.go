package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// LedgerRepository is the append-only record of lock events and monitoring
// violations. Rows cannot be updated or deleted once written.
type LedgerRepository struct {
	BaseRepository
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// RecordEvent stores a history entry and returns its correlation id.
func (r *LedgerRepository) RecordEvent(ctx context.Context, e models.HistoryEntry) (string, error) {
	id := GenerateID()

	var confidence sql.NullFloat64
	if e.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO ledger_events (id, lock_id, event_type, actor_id, confidence, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, e.LockID, string(e.EventType), e.ActorID, confidence, e.Timestamp.UTC(), r.Now())
	if err != nil {
		return "", fmt.Errorf("inserting ledger event: %w", err)
	}

	return id, nil
}

// RecordViolation stores a violation and returns its correlation id.
func (r *LedgerRepository) RecordViolation(ctx context.Context, v models.Violation) (string, error) {
	if v.LockID == "" || v.Type == "" {
		return "", fmt.Errorf("violation requires a lock id and a type")
	}
	id := GenerateID()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO violations (id, subject_id, lock_id, violation_type, description, confidence, detected_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, v.SubjectID, v.LockID, v.Type, v.Description, v.Confidence, v.DetectedAt.UTC(), r.Now())
	if err != nil {
		return "", fmt.Errorf("inserting violation: %w", err)
	}

	return id, nil
}

// ListViolations returns recorded violations in insertion order. An empty
// lockID lists violations for every lock.
func (r *LedgerRepository) ListViolations(ctx context.Context, lockID string) ([]models.ViolationRecord, error) {
	query := `
		SELECT id, subject_id, lock_id, violation_type, description, confidence, detected_at, recorded_at
		FROM violations
	`
	var args []any
	if lockID != "" {
		query += " WHERE lock_id = ?"
		args = append(args, lockID)
	}
	query += " ORDER BY rowid"

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying violations: %w", err)
	}
	defer rows.Close()

	records := []models.ViolationRecord{}
	for rows.Next() {
		var v models.ViolationRecord
		if err := rows.Scan(
			&v.ID, &v.SubjectID, &v.LockID, &v.Type, &v.Description,
			&v.Confidence, &v.DetectedAt, &v.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning violation: %w", err)
		}
		records = append(records, v)
	}

	return records, rows.Err()
}

// ListEvents returns the ledger events of one lock in insertion order.
func (r *LedgerRepository) ListEvents(ctx context.Context, lockID string) ([]models.EventRecord, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, lock_id, event_type, actor_id, confidence, occurred_at, recorded_at
		FROM ledger_events
		WHERE lock_id = ?
		ORDER BY rowid
	`, lockID)
	if err != nil {
		return nil, fmt.Errorf("querying ledger events: %w", err)
	}
	defer rows.Close()

	records := []models.EventRecord{}
	for rows.Next() {
		var (
			e          models.EventRecord
			eventType  string
			confidence sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ID, &e.LockID, &eventType, &e.ActorID, &confidence, &e.Timestamp, &e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning ledger event: %w", err)
		}
		e.EventType = models.EventType(eventType)
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}
		records = append(records, e)
	}

	return records, rows.Err()
}
