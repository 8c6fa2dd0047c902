package models

import "time"

// ConnectionStatus is the state of the simulated push connection.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// MessageType identifies a pushed message.
type MessageType string

const (
	MessageUserUpdate      MessageType = "user_update"
	MessageUserActivity    MessageType = "user_activity"
	MessageAnalyticsUpdate MessageType = "analytics_update"
	MessageNotification    MessageType = "notification"
	MessageUserStatus      MessageType = "user_status"
)

// Message is a pushed update delivered over the simulated connection.
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notification is a user-facing alert.
type Notification struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}
