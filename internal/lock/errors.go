package lock

import (
	"errors"
	"fmt"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// Errors returned by the registry and the grant manager.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAccessDenied    = errors.New("access denied")
)

// AccessDeniedError is returned by Unlock and Lock when the token does not validate.
// It matches ErrAccessDenied with errors.Is.
type AccessDeniedError struct {
	LockID string
	Reason models.DenyReason
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to lock %s: %s", e.LockID, e.Reason)
}

// Is reports whether target is ErrAccessDenied.
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}
