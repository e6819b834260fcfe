// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"

	"github.com/lock-access-monitor/backend/internal/api/middleware"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/monitor"
	"github.com/lock-access-monitor/backend/internal/storage"
	"github.com/lock-access-monitor/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	DBConnected      bool   `json:"db_connected"`
	LocksCount       int    `json:"locks_count"`
	MonitoringActive bool   `json:"monitoring_active"`
	WebSocketClients int    `json:"websocket_clients"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB, registry *lock.Registry, scheduler *monitor.Scheduler, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		middleware.WriteJSON(w, code, HealthResponse{
			Status:           status,
			DBConnected:      dbConnected,
			LocksCount:       registry.Count(),
			MonitoringActive: scheduler.IsActive(),
			WebSocketClients: hub.ClientCount(),
		})
	}
}
