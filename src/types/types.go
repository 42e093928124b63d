package types

import (
	"time"

	"github.com/google/uuid"
)

// Server-emitted event types. The set is open: collaborators may broadcast
// custom types, these are the ones the hub itself knows about.
const (
	EventConnectionEstablished = "connection_established"
	EventConnectionClosed      = "connection_closed"
	EventHeartbeat             = "heartbeat"
	EventClientMessage         = "client_message"

	EventSubscriptionConfirmed   = "subscription_confirmed"
	EventUnsubscriptionConfirmed = "unsubscription_confirmed"
	EventAuthenticationSuccess   = "authentication_success"
	EventAuthenticationError     = "authentication_error"
	EventError                   = "error"

	EventProcessingStarted   = "processing_started"
	EventProcessingProgress  = "processing_progress"
	EventProcessingCompleted = "processing_completed"
	EventProcessingFailed    = "processing_failed"
	EventFileDetected        = "file_detected"
	EventFileUploaded        = "file_uploaded"
	EventDownloadCompleted   = "download_completed"
	EventSystemStatusUpdate  = "system_status_update"
	EventSystemError         = "system_error"
	EventSystemAlert         = "system_alert"
	EventConfigUpdated       = "config_updated"
	EventQueueStatusUpdate   = "queue_status_update"
	EventJobQueued           = "job_queued"
	EventJobCancelled        = "job_cancelled"
	EventUserNotification    = "user_notification"
	EventErrorNotification   = "error_notification"
)

// Client-sent control message types.
const (
	TypeHeartbeatResponse = "heartbeat_response"
	TypeSubscribe         = "subscribe"
	TypeUnsubscribe       = "unsubscribe"
	TypeAuthenticate      = "authenticate"
)

// WebSocket close codes used by the hub. 4xxx is the application range.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseCapacityExceeded = 4001
)

// systemTypes always bypass per-connection subscription filtering.
var systemTypes = map[string]struct{}{
	EventConnectionEstablished:   {},
	EventSubscriptionConfirmed:   {},
	EventUnsubscriptionConfirmed: {},
	EventAuthenticationSuccess:   {},
	EventAuthenticationError:     {},
	EventError:                   {},
	EventHeartbeat:               {},
}

// IsSystemType reports whether t is delivered regardless of subscriptions.
func IsSystemType(t string) bool {
	_, ok := systemTypes[t]
	return ok
}

// Message is the wire format in both directions.
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	// Routing hints, server-side only, never serialized.
	TargetConnectionIDs []string `json:"-"`
	RequiredRoles       []string `json:"-"`
}

// NewMessage builds an outbound message with a fresh id and timestamp.
func NewMessage(eventType string, data map[string]any) Message {
	return Message{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	WriteClose(code int, reason string) error
	Close() error
}

// ConnectionSummary is the read-only view of a live connection exposed by
// ListConnections and the admin routes.
type ConnectionSummary struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id,omitempty"`
	Authenticated    bool              `json:"authenticated"`
	Roles            []string          `json:"roles,omitempty"`
	Subscriptions    []string          `json:"subscriptions,omitempty"`
	ConnectedAt      time.Time         `json:"connected_at"`
	LastHeartbeatAt  time.Time         `json:"last_heartbeat_at"`
	ClientInfo       map[string]string `json:"client_info,omitempty"`
	MessagesReceived uint64            `json:"messages_received"`
}

// Stats is a point-in-time snapshot of hub counters.
type Stats struct {
	Active           int    `json:"active_connections"`
	Authenticated    int    `json:"authenticated_connections"`
	TotalEver        uint64 `json:"total_connections"`
	Sent             uint64 `json:"messages_sent"`
	Failed           uint64 `json:"messages_failed"`
	HeartbeatsSent   uint64 `json:"heartbeats_sent"`
	HeartbeatsFailed uint64 `json:"heartbeats_failed"`
	Dropped          uint64 `json:"connections_dropped"`
	UniqueUsers      int    `json:"unique_users"`
}
