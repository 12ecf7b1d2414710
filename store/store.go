// Package store defines the persistence interface for the gateway and
// provides in-memory, SQLite, and PostgreSQL implementations.
//
// Two kinds of rows live here: user accounts (for the builtin auth provider)
// and sessions. A session represents one continuous logical interaction and
// may span several WebSocket connections, so it carries no transport state,
// just its owner, timestamps, and a small key/value state bag.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserExists is returned by CreateUser when the username is taken.
var ErrUserExists = errors.New("user already exists")

// Store is the persistence interface for the gateway.
//
// Lookup methods return (nil, nil) for missing rows. GetSession refreshes the
// session's last-activity time as a side effect, so any successful lookup
// counts as activity for sweeping purposes.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Sessions
	CreateSession(ctx context.Context, username string) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSessionState(ctx context.Context, id, key string, value any) (bool, error)
	GetSessionState(ctx context.Context, id, key string) (any, bool, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	// SweepSessions removes sessions idle longer than maxAge and returns the
	// number removed. Safe to call concurrently with lookups.
	SweepSessions(ctx context.Context, maxAge time.Duration) (int, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// User represents a gateway user account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents one logical interaction context.
type Session struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"` // owning principal, fixed at creation
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	State      map[string]any `json:"state"`
}
