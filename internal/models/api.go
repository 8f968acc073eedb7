package models

import "github.com/google/uuid"

// WebSocket message envelope pushed to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type SessionEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Points    int       `json:"points,omitempty"`
	Level     int       `json:"level,omitempty"`
}

// API error response envelope.
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// RefreshJob is a leaderboard-refresh unit of work queued on session
// completion and drained by the background worker.
type RefreshJob struct {
	ID     uuid.UUID  `json:"id"`
	Scope  string     `json:"scope"`
	ClanID *uuid.UUID `json:"clan_id,omitempty"`
}
