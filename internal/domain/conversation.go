package domain

import "time"

// User is the part of an identity-service user record the messaging core shows.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Counterpart is one aggregated thread as seen from a single user.
type Counterpart struct {
	UserID string
	LastAt time.Time
}

// Conversation is a conversation-list row.
type Conversation struct {
	User         User      `json:"user"`
	LastActivity time.Time `json:"last_activity"`
	Date         string    `json:"date"`
}

// Presence describes the live connections bound to a user's room.
type Presence struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}
