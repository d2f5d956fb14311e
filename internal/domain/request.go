package domain

import (
	"encoding/json"
	"fmt"
)

// InboundMessage is the message field of a /message request. Clients
// may send either a plain string (implying role "user") or an object
// with role and content.
type InboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnmarshalJSON accepts both the string and the object form.
func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Role = RoleUser
		m.Content = s
		return nil
	}

	type alias InboundMessage
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("message must be a string or {role, content} object")
	}
	if obj.Role == "" {
		obj.Role = RoleUser
	}
	*m = InboundMessage(obj)
	return nil
}

// InitializeRequest is the body of POST /initialize.
type InitializeRequest struct {
	UserID string `json:"user_id"`
}

// InitializeResponse is the body of a successful /initialize reply.
type InitializeResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// MessageRequest is the body of POST /message.
type MessageRequest struct {
	UserID  string          `json:"user_id"`
	Message *InboundMessage `json:"message"`
}

// ProcessImagesRequest is the body of POST /process_images.
type ProcessImagesRequest struct {
	UserID string   `json:"user_id"`
	Images []string `json:"images"` // base64 payloads
}

// ClearRequest is the body of POST /clear.
type ClearRequest struct {
	UserID string `json:"user_id"`
}

// ChatTurn is one visible conversation turn returned to the client.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageResponse is the body of a successful /message reply.
type MessageResponse struct {
	Response []ChatTurn `json:"response"`
}

// ProcessImagesResponse is the body of a successful /process_images reply.
type ProcessImagesResponse struct {
	Response             []ChatTurn `json:"response"`
	ProcessedImagesCount int        `json:"processed_images_count"`
}
