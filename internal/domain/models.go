// Package domain defines the core domain models for the assistant service.
package domain

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// User is the identity anchor for an external client.
type User struct {
	UserID     string    `json:"user_id"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is one conversation context. At most one session per user is
// active at a time; creating a new session deactivates prior ones.
type Session struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	IsActive        bool      `json:"is_active"`
	CurrentAgent    string    `json:"current_agent"`
	CreatedAt       time.Time `json:"created_at"`
	LastInteraction time.Time `json:"last_interaction"`
}

// Message is an append-only conversation log entry. Ordering by
// creation time is the canonical conversation order.
type Message struct {
	MessageID     string          `json:"message_id"`
	SessionID     string          `json:"session_id"`
	Role          string          `json:"role"` // user, assistant, system, tool
	Content       string          `json:"content"`
	VisibleToUser bool            `json:"visible_to_user"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MessageMetadata is the free-form annotation stored with a message.
type MessageMetadata struct {
	Agent       string `json:"agent,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	HandoffFrom string `json:"handoff_from,omitempty"`
	HandoffTo   string `json:"handoff_to,omitempty"`
}

// Image is one submitted picture. Created unprocessed; transitions to
// processed exactly once when an interpretation is attached.
type Image struct {
	ImageID        string    `json:"image_id"`
	SessionID      string    `json:"session_id"`
	ImageData      string    `json:"image_data"` // base64 encoded payload
	Interpretation string    `json:"interpretation,omitempty"`
	Processed      bool      `json:"processed"`
	CreatedAt      time.Time `json:"created_at"`
}

// MedicalRecord is a fact-sheet row keyed by (user, field). Values are
// overwritten on update, never duplicated.
type MedicalRecord struct {
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// UserContext is the per-user snapshot computed at container
// construction and cached for the lifetime of the container.
type UserContext struct {
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	ExternalID string `json:"external_id"`
}
