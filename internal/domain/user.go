package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserCredential is the persisted username -> password hash pair.
// Records are created on registration and never updated.
type UserCredential struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialsRequest is the body accepted by both /register and /login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionToken describes an issued token. Tokens are self-contained and never stored.
type SessionToken struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserRegisteredEvent is published after a credential is stored.
type UserRegisteredEvent struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}
