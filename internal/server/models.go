package server

import "time"

// HTTPError is the generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// ChatRequest starts or continues a conversation. SessionID empty means a
// new session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the outcome of one turn.
type ChatResponse struct {
	SessionID  string `json:"session_id"`
	MessageID  string `json:"message_id"`
	Reply      string `json:"reply"`
	Iterations int    `json:"iterations"`
	Truncated  bool   `json:"truncated,omitempty"`
	// NewDocumentVersion is set when an edit landed during the turn.
	NewDocumentVersion int64 `json:"new_document_version,omitempty"`
}

// SessionResponse is one chat session summary.
type SessionResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int       `json:"message_count"`
}

// MessageResponse is one persisted chat message.
type MessageResponse struct {
	ID        string                 `json:"id"`
	Seq       int64                  `json:"seq"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// EditRecordResponse is one entry of the document's edit history.
type EditRecordResponse struct {
	ID            string      `json:"id"`
	SessionID     string      `json:"session_id,omitempty"`
	Operation     string      `json:"operation"`
	Actor         string      `json:"actor"`
	VersionBefore int64       `json:"version_before"`
	VersionAfter  int64       `json:"version_after"`
	Changes       interface{} `json:"changes"`
	CreatedAt     time.Time   `json:"created_at"`
}
