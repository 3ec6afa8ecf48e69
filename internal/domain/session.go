package domain

import "time"

// SessionID groups connections watching the same feed. It is issued by
// the session management side of the product, never by the relay.
type SessionID int64

// Participant is one roster entry.
type Participant struct {
	UserID   UserID `json:"userId"`
	Username string `json:"username"`
}

// Message is a persisted chat line.
type Message struct {
	ID        int64     `json:"id"`
	SessionID SessionID `json:"sessionId"`
	UserID    UserID    `json:"userId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
