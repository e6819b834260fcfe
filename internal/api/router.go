// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lock-access-monitor/backend/internal/api/handlers"
	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/history"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/monitor"
	"github.com/lock-access-monitor/backend/internal/storage"
	"github.com/lock-access-monitor/backend/internal/websocket"
)

// Services are the components the API routes to.
type Services struct {
	DB        *storage.DB
	Ledger    *storage.LedgerRepository
	Registry  *lock.Registry
	Manager   *lock.Manager
	History   history.Log
	Detector  *monitor.Detector
	Scheduler *monitor.Scheduler
	Hub       *websocket.Hub

	// Gatherer serves /metrics when set.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *middleware.HTTPMetrics
	Logger      *log.Logger
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	events := websocket.NewEventBroadcaster(s.Hub)

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging(s.Logger))
	r.Use(middleware.ErrorRecovery)
	r.Use(s.HTTPMetrics.Instrument)

	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(s.DB, s.Registry, s.Scheduler, s.Hub)).Methods("GET")
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Lock endpoints
	api.HandleFunc("/locks", handlers.ListLocks(s.Registry)).Methods("GET")
	api.HandleFunc("/locks", handlers.RegisterLock(s.Registry, events)).Methods("POST")
	api.HandleFunc("/locks/{id}", handlers.GetLock(s.Registry)).Methods("GET")
	api.HandleFunc("/locks/{id}/heartbeat", handlers.Heartbeat(s.Manager, events)).Methods("POST")
	api.HandleFunc("/locks/{id}/history", handlers.GetLockHistory(s.Registry, s.History)).Methods("GET")
	api.HandleFunc("/locks/{id}/ledger", handlers.GetLockLedger(s.Ledger)).Methods("GET")
	api.HandleFunc("/locks/{id}/analysis", handlers.AnalyzeLock(s.Detector)).Methods("GET")
	api.HandleFunc("/locks/{id}/detect", handlers.DetectForLock(s.Detector)).Methods("POST")

	// Grant endpoints
	api.HandleFunc("/locks/{id}/grants", handlers.IssueGrant(s.Manager, events)).Methods("POST")
	api.HandleFunc("/locks/{id}/revoke", handlers.RevokeGrant(s.Manager, events)).Methods("POST")
	api.HandleFunc("/locks/{id}/validate", handlers.ValidateAccess(s.Manager)).Methods("POST")
	api.HandleFunc("/locks/{id}/unlock", handlers.UnlockDoor(s.Manager, events)).Methods("POST")
	api.HandleFunc("/locks/{id}/lock", handlers.LockDoor(s.Manager, events)).Methods("POST")

	// Monitoring endpoints
	api.HandleFunc("/monitoring", handlers.MonitoringStatus(s.Scheduler)).Methods("GET")
	api.HandleFunc("/monitoring/start", handlers.StartMonitoring(s.Scheduler, events)).Methods("POST")
	api.HandleFunc("/monitoring/stop", handlers.StopMonitoring(s.Scheduler, events)).Methods("POST")
	api.HandleFunc("/monitoring/check", handlers.ManualCheck(s.Scheduler)).Methods("POST")
	api.HandleFunc("/monitoring/threshold", handlers.SetThreshold(s.Scheduler, events)).Methods("PUT")
	api.HandleFunc("/monitoring/subscribers/{id}", handlers.Unsubscribe(s.Scheduler)).Methods("DELETE")
	api.HandleFunc("/violations", handlers.ListViolations(s.Ledger)).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "route not found")
	})

	return r
}
