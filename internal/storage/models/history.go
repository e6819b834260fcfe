package models

import (
	"time"
)

// EventType identifies what happened at a lock.
type EventType string

// History event types
const (
	EventGrantIssued                EventType = "grant_issued"
	EventGrantRevoked               EventType = "grant_revoked"
	EventAccessValidated            EventType = "access_validated"
	EventAccessDenied               EventType = "access_denied"
	EventDoorUnlocked               EventType = "door_unlocked"
	EventDoorLocked                 EventType = "door_locked"
	EventUnauthorizedAccessDetected EventType = "unauthorized_access_detected"
)

// UnknownActor is recorded when no subject can be attributed to an event.
const UnknownActor = "unknown"

// HistoryEntry is an immutable record in a lock's access history.
type HistoryEntry struct {
	LockID     string    `json:"lock_id"`
	EventType  EventType `json:"event_type"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence,omitempty"` // detections only
}

// EventRecord is a history entry as stored in the ledger.
type EventRecord struct {
	HistoryEntry
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
}
