package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/storage/models"
	"github.com/lock-access-monitor/backend/internal/websocket"
)

// IssueGrantRequest is the body of POST /locks/{id}/grants.
type IssueGrantRequest struct {
	SubjectID  string    `json:"subject_id"`
	ValidUntil time.Time `json:"valid_until"`
}

// TokenRequest carries the token presented to a lock.
type TokenRequest struct {
	Token string `json:"token"`
}

// IssueGrant issues an access grant. The response is the only place the
// token is returned.
func IssueGrant(manager *lock.Manager, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssueGrantRequest
		if !decodeBody(w, r, &req) {
			return
		}

		lockID := mux.Vars(r)["id"]
		grant, err := manager.Grant(r.Context(), lockID, req.SubjectID, req.ValidUntil)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		events.BroadcastGrantIssued(lockID, grant)
		middleware.WriteJSON(w, http.StatusCreated, grant)
	}
}

// RevokeGrant revokes the grant matching the token in the request body.
func RevokeGrant(manager *lock.Manager, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		lockID := mux.Vars(r)["id"]
		if err := manager.Revoke(r.Context(), lockID, req.Token); err != nil {
			writeDomainError(w, err)
			return
		}

		events.BroadcastGrantRevoked(lockID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ValidateAccess checks a token against the lock's grant. A failed
// validation is a 200 with valid=false.
func ValidateAccess(manager *lock.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		result, err := manager.Validate(r.Context(), mux.Vars(r)["id"], req.Token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// UnlockDoor opens the door for a valid token.
func UnlockDoor(manager *lock.Manager, events *websocket.EventBroadcaster) http.HandlerFunc {
	return actuate(manager.Unlock, events)
}

// LockDoor closes the door for a valid token.
func LockDoor(manager *lock.Manager, events *websocket.EventBroadcaster) http.HandlerFunc {
	return actuate(manager.Lock, events)
}

func actuate(op func(ctx context.Context, lockID, token string) (models.Lock, error), events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		lockID := mux.Vars(r)["id"]
		l, err := op(r.Context(), lockID, req.Token)
		if err != nil {
			var denied *lock.AccessDeniedError
			if errors.As(err, &denied) {
				events.BroadcastNotification("warning", "Access denied",
					fmt.Sprintf("Access to lock %s was denied: %s", lockID, denied.Reason))
			}
			writeDomainError(w, err)
			return
		}

		events.BroadcastLockStateChanged(l)
		middleware.WriteJSON(w, http.StatusOK, lockResponse(l))
	}
}
