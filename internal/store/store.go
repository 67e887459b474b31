// ABOUTME: Store interfaces, entity types, and sentinel errors
// ABOUTME: Sessions carry the persisted principal; settings hold the dashboard config blob

package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrSettingsNotFound is returned when no settings blob has been saved yet.
var ErrSettingsNotFound = errors.New("settings not found")

// Session is an authenticated dashboard session. The principal fields are
// denormalized onto the session row: the demo authenticator derives the
// principal at login time, so there is no separate users table to join.
type Session struct {
	ID        string
	Email     string
	Name      string
	Role      string
	Plan      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Settings is the dashboard settings blob: the remote endpoint override and
// instance limit an admin can edit at runtime.
type Settings struct {
	APIURL       string `json:"apiUrl"`
	APIKey       string `json:"apiKey"`
	MaxInstances int    `json:"maxInstances"`
}

// SessionStore defines session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// SettingsStore defines settings blob persistence.
type SettingsStore interface {
	SaveSettings(ctx context.Context, settings *Settings) error
	GetSettings(ctx context.Context) (*Settings, error)
}

// Store combines all persistence concerns.
type Store interface {
	SessionStore
	SettingsStore
	Close() error
}
