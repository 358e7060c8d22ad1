package websocket

import (
	"time"

	"github.com/koelab/koe-sentinel/internal/privacy"
	"github.com/koelab/koe-sentinel/internal/settings"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeSettingsUpdated carries the full new settings after an update.
	EventTypeSettingsUpdated EventType = "settings_updated"
	// EventTypeMasking reports the findings of a masking call (counts only).
	EventTypeMasking EventType = "masking"
	// EventTypePTTState reports push-to-talk lifecycle transitions.
	EventTypePTTState EventType = "ptt_state"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// SettingsUpdatedEvent carries the new settings value so UI observers can
// re-render without a round trip.
type SettingsUpdatedEvent struct {
	Settings settings.Settings `json:"settings"`
}

// MaskingEvent reports what a masking call found and did. It never carries
// input or output text, only category counts and the gate's annotations.
type MaskingEvent struct {
	Findings []privacy.Finding `json:"findings"`
	Warned   bool              `json:"warned"`
	Blocked  bool              `json:"blocked"`
}

// PTTStateEvent reports a push-to-talk state transition.
type PTTStateEvent struct {
	State string `json:"state"` // "recording", "processing", "idle"
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}
