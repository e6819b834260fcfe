package models

import (
	"time"
)

// AccessGrant records that a subject holds access to a lock until ValidUntil.
type AccessGrant struct {
	Token      string    `json:"token"`
	SubjectID  string    `json:"subject_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ValidUntil time.Time `json:"valid_until"`
}

// ExpiredAt reports whether the grant is no longer valid at t.
// The boundary itself counts as expired.
func (g *AccessGrant) ExpiredAt(t time.Time) bool {
	return !t.Before(g.ValidUntil)
}

// DenyReason explains why a token failed validation.
type DenyReason string

const (
	ReasonNoActiveGrant DenyReason = "no_active_grant"
	ReasonTokenMismatch DenyReason = "token_mismatch"
	ReasonExpired       DenyReason = "expired"
)

// ValidationResult is the outcome of validating a token against a lock.
// A failed validation is a normal result, not an error.
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	Reason     DenyReason `json:"reason,omitempty"`
	SubjectID  string     `json:"subject_id,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}
