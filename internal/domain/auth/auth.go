// Package auth holds the identities that may open an admin session.
package auth

import (
	"context"
	"time"
)

// Session is an authenticated caller. Subject is the API key name or the
// operator username.
type Session struct {
	Subject   string
	Method    string
	Scopes    []string
	ExpiresAt time.Time
}

// Session methods.
const (
	MethodAPIKey = "api_key"
	MethodToken  = "token"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Operator is an admin user allowed to log in with a password.
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

// OperatorRepository looks up active operators.
type OperatorRepository interface {
	FindByUsername(ctx context.Context, username string) (*Operator, error)
}
