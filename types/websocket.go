package types

import "time"

// ProgressMessage represents a WebSocket progress update message
type ProgressMessage struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"` // "progress", "status", "complete", "error"
	Status    string    `json:"status"`
	Progress  string    `json:"progress"`          // latest mirror output line
	Message   string    `json:"message,omitempty"` // status or error messages
	Timestamp time.Time `json:"timestamp"`
}
