package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/history"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/monitor"
	"github.com/lock-access-monitor/backend/internal/storage"
	"github.com/lock-access-monitor/backend/internal/storage/models"
	"github.com/lock-access-monitor/backend/internal/websocket"
)

// GrantView is a grant as shown to API readers. The token is omitted.
type GrantView struct {
	SubjectID  string    `json:"subject_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ValidUntil time.Time `json:"valid_until"`
}

// LockResponse represents a lock in API responses.
type LockResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	OwnerID       string               `json:"owner_id,omitempty"`
	PhysicalState models.PhysicalState `json:"physical_state"`
	BatteryLevel  int                  `json:"battery_level"`
	LastSeen      time.Time            `json:"last_seen"`
	CreatedAt     time.Time            `json:"created_at"`
	Grant         *GrantView           `json:"grant,omitempty"`
}

func lockResponse(l models.Lock) LockResponse {
	resp := LockResponse{
		ID:            l.ID,
		Name:          l.Name,
		OwnerID:       l.OwnerID,
		PhysicalState: l.PhysicalState,
		BatteryLevel:  l.BatteryLevel,
		LastSeen:      l.LastSeen,
		CreatedAt:     l.CreatedAt,
	}
	if g := l.CurrentGrant; g != nil {
		resp.Grant = &GrantView{
			SubjectID:  g.SubjectID,
			IssuedAt:   g.IssuedAt,
			ValidUntil: g.ValidUntil,
		}
	}
	return resp
}

// ListLocks returns all registered locks in registration order.
func ListLocks(registry *lock.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locks := registry.List()
		resp := make([]LockResponse, 0, len(locks))
		for _, l := range locks {
			resp = append(resp, lockResponse(l))
		}
		middleware.WriteJSON(w, http.StatusOK, resp)
	}
}

// RegisterLockRequest is the body of POST /locks.
type RegisterLockRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id,omitempty"`
}

// RegisterLock adds a lock to the registry.
func RegisterLock(registry *lock.Registry, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterLockRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var opts []lock.RegisterOption
		if req.OwnerID != "" {
			opts = append(opts, lock.WithOwner(req.OwnerID))
		}

		l, err := registry.Register(req.ID, req.Name, opts...)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		events.BroadcastLockStateChanged(l)
		middleware.WriteJSON(w, http.StatusCreated, lockResponse(l))
	}
}

// GetLock returns a single lock.
func GetLock(registry *lock.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := registry.Get(mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, lockResponse(l))
	}
}

// HeartbeatRequest is the body of POST /locks/{id}/heartbeat.
type HeartbeatRequest struct {
	BatteryLevel int `json:"battery_level"`
}

// Heartbeat records a status report from a lock.
func Heartbeat(manager *lock.Manager, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		if !decodeBody(w, r, &req) {
			return
		}

		l, err := manager.Heartbeat(r.Context(), mux.Vars(r)["id"], req.BatteryLevel)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		events.BroadcastLockStateChanged(l)
		middleware.WriteJSON(w, http.StatusOK, lockResponse(l))
	}
}

// GetLockHistory returns the in-memory access history of a lock.
func GetLockHistory(registry *lock.Registry, hist history.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := registry.Get(id); err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, hist.For(id))
	}
}

// GetLockLedger returns the durable ledger events recorded for a lock.
func GetLockLedger(ledger *storage.LedgerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := ledger.ListEvents(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, events)
	}
}

// AnalyzeLock returns an access pattern analysis of a lock's history.
func AnalyzeLock(detector *monitor.Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := detector.Analyze(mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, report)
	}
}

// DetectRequest is the body of POST /locks/{id}/detect.
type DetectRequest struct {
	SubjectID string `json:"subject_id"`
}

// DetectForLock runs a single detection for an actor against a lock.
// An empty body evaluates the unknown actor.
func DetectForLock(detector *monitor.Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DetectRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		result, err := detector.DetectForLock(r.Context(), req.SubjectID, mux.Vars(r)["id"])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}
