package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/monitor"
	"github.com/lock-access-monitor/backend/internal/storage"
	"github.com/lock-access-monitor/backend/internal/websocket"
)

// MonitoringStatus returns the current monitoring state.
func MonitoringStatus(scheduler *monitor.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, scheduler.Status())
	}
}

// StartMonitoringRequest is the body of POST /monitoring/start.
type StartMonitoringRequest struct {
	IntervalMs int `json:"interval_ms,omitempty"`
}

// ToggleResponse reports whether a start or stop changed anything.
type ToggleResponse struct {
	Changed  bool `json:"changed"`
	IsActive bool `json:"is_active"`
}

// StartMonitoring starts periodic monitoring. An omitted interval uses the
// configured default.
func StartMonitoring(scheduler *monitor.Scheduler, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartMonitoringRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		changed := scheduler.Start(req.IntervalMs)
		if changed {
			events.BroadcastMonitoringStatus(scheduler.Status())
		}
		middleware.WriteJSON(w, http.StatusOK, ToggleResponse{Changed: changed, IsActive: scheduler.IsActive()})
	}
}

// StopMonitoring stops periodic monitoring.
func StopMonitoring(scheduler *monitor.Scheduler, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed := scheduler.Stop()
		if changed {
			events.BroadcastMonitoringStatus(scheduler.Status())
		}
		middleware.WriteJSON(w, http.StatusOK, ToggleResponse{Changed: changed, IsActive: scheduler.IsActive()})
	}
}

// ManualCheck runs a monitoring pass immediately and returns its summary.
func ManualCheck(scheduler *monitor.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, scheduler.ManualCheck(r.Context()))
	}
}

// ThresholdRequest is the body of PUT /monitoring/threshold.
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// SetThreshold changes the detection threshold.
func SetThreshold(scheduler *monitor.Scheduler, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ThresholdRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Threshold == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "threshold is required")
			return
		}

		if err := scheduler.SetThreshold(*req.Threshold); err != nil {
			writeDomainError(w, err)
			return
		}

		state := scheduler.Status()
		events.BroadcastMonitoringStatus(state)
		middleware.WriteJSON(w, http.StatusOK, state)
	}
}

// Unsubscribe removes an alert subscriber by handle.
func Unsubscribe(scheduler *monitor.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scheduler.Unsubscribe(mux.Vars(r)["id"]); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListViolations returns recorded violations, optionally filtered by the
// lock_id query parameter.
func ListViolations(ledger *storage.LedgerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		violations, err := ledger.ListViolations(r.Context(), r.URL.Query().Get("lock_id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, violations)
	}
}
