// Package models contains the domain models for the application.
package models

import (
	"time"
)

// PhysicalState is the reported bolt position of a lock.
type PhysicalState string

const (
	StateLocked   PhysicalState = "locked"
	StateUnlocked PhysicalState = "unlocked"
)

// Lock is a smart lock under access management.
type Lock struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	OwnerID       string        `json:"owner_id,omitempty"`
	PhysicalState PhysicalState `json:"physical_state"`
	BatteryLevel  int           `json:"battery_level"`
	LastSeen      time.Time     `json:"last_seen"`
	CurrentGrant  *AccessGrant  `json:"current_grant,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ActiveGrantAt reports whether the lock holds a grant that is unexpired at t.
func (l *Lock) ActiveGrantAt(t time.Time) bool {
	return l.CurrentGrant != nil && !l.CurrentGrant.ExpiredAt(t)
}

// Clone returns a deep copy so callers never share the grant pointer.
func (l Lock) Clone() Lock {
	if l.CurrentGrant != nil {
		g := *l.CurrentGrant
		l.CurrentGrant = &g
	}
	return l
}
