package websocket

import (
	"encoding/json"
	"time"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeUnauthorizedAccess      MessageType = "monitor.unauthorized_access"
	TypeMonitoringStatusChanged MessageType = "monitor.status_changed"
	TypeLockStateChanged        MessageType = "lock.state_changed"
	TypeGrantChanged            MessageType = "lock.grant_changed"
	TypeNotification            MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertPayload is the payload for monitor.unauthorized_access events.
type AlertPayload struct {
	LockID     string    `json:"lock_id"`
	SubjectID  string    `json:"subject_id"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`
}

// LockStatePayload is the payload for lock.state_changed events.
type LockStatePayload struct {
	LockID        string               `json:"lock_id"`
	Name          string               `json:"name"`
	PhysicalState models.PhysicalState `json:"physical_state"`
	BatteryLevel  int                  `json:"battery_level"`
	LastSeen      time.Time            `json:"last_seen"`
}

// GrantPayload is the payload for lock.grant_changed events. The token is
// never included.
type GrantPayload struct {
	LockID     string     `json:"lock_id"`
	Action     string     `json:"action"` // "issued" or "revoked"
	SubjectID  string     `json:"subject_id,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
