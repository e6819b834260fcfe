package websocket

import (
	"context"
	"fmt"
	"log"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// EventBroadcaster turns domain events into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// DetectionAlert pushes a qualifying detection to every client. Its signature
// matches the monitor's alert subscriber.
func (b *EventBroadcaster) DetectionAlert(_ context.Context, result models.DetectionResult) error {
	msg := NewMessage(TypeUnauthorizedAccess, AlertPayload{
		LockID:     result.LockID,
		SubjectID:  result.SubjectID,
		Confidence: result.Confidence,
		DetectedAt: result.Timestamp,
	})
	return b.broadcast(msg)
}

// BroadcastLockStateChanged sends a lock state changed event.
func (b *EventBroadcaster) BroadcastLockStateChanged(l models.Lock) {
	msg := NewMessage(TypeLockStateChanged, LockStatePayload{
		LockID:        l.ID,
		Name:          l.Name,
		PhysicalState: l.PhysicalState,
		BatteryLevel:  l.BatteryLevel,
		LastSeen:      l.LastSeen,
	})
	b.send(msg)
}

// BroadcastGrantIssued sends a grant changed event for a new grant.
func (b *EventBroadcaster) BroadcastGrantIssued(lockID string, g models.AccessGrant) {
	validUntil := g.ValidUntil
	msg := NewMessage(TypeGrantChanged, GrantPayload{
		LockID:     lockID,
		Action:     "issued",
		SubjectID:  g.SubjectID,
		ValidUntil: &validUntil,
	})
	b.send(msg)
}

// BroadcastGrantRevoked sends a grant changed event for a revoked grant.
func (b *EventBroadcaster) BroadcastGrantRevoked(lockID string) {
	b.send(NewMessage(TypeGrantChanged, GrantPayload{LockID: lockID, Action: "revoked"}))
}

// BroadcastMonitoringStatus sends the current monitoring state.
func (b *EventBroadcaster) BroadcastMonitoringStatus(state models.MonitoringState) {
	b.send(NewMessage(TypeMonitoringStatusChanged, state))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	b.send(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func (b *EventBroadcaster) send(msg Message) {
	if err := b.broadcast(msg); err != nil {
		log.Printf("Failed to broadcast %s: %v", msg.Type, err)
	}
}

func (b *EventBroadcaster) broadcast(msg Message) error {
	if b == nil || b.hub == nil {
		return nil
	}
	data, err := msg.JSON()
	if err != nil {
		return fmt.Errorf("encoding WebSocket message: %w", err)
	}
	return b.hub.Broadcast(data)
}
