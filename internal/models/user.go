package models

import "time"

// UserSession backs one issued token.
type UserSession struct {
	Participant  string    `json:"participant" redis:"participant"`
	SessionID    string    `json:"session_id" redis:"session_id"`
	CreatedAt    time.Time `json:"created_at" redis:"created_at"`
	LastAccessed time.Time `json:"last_accessed" redis:"last_accessed"`
}

type TokenRequest struct {
	// Participant is a base58 key; empty asks for a fresh one.
	Participant string `json:"participant"`
}

type TokenResponse struct {
	Token       string    `json:"token"`
	Participant string    `json:"participant"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}
