// Package domain holds the session and user records owned by the auth store.
package domain

import (
	"errors"
	"time"
)

// Sentinel errors for session state validation.
var (
	// ErrCorruptSession is returned when credential state violates the
	// session invariant (e.g. token present but user missing).
	ErrCorruptSession = errors.New("corrupt session state")
)

// User is the authenticated identity. Fields beyond Role are opaque to the agent.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Valid reports whether the user record carries the minimal identity shape.
func (u *User) Valid() bool {
	return u != nil && u.ID != ""
}

// State is the session lifecycle state.
type State string

// Session states. Loading is an orthogonal flag on Session, not a State.
const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Session is the in-memory record of the current identity and its credentials.
type Session struct {
	User         *User
	Token        string
	RefreshToken string
	CreatedAt    time.Time
}

// IsAuthenticated reports whether the session holds a live identity.
// True requires both a valid user and a non-empty token.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User.Valid() && s.Token != ""
}

// State returns the lifecycle state derived from the session fields.
func (s *Session) State() State {
	if s.IsAuthenticated() {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// Validate returns ErrCorruptSession when credentials are present without an
// identity (or the reverse); such state must be purged, never trusted.
func (s *Session) Validate() error {
	if s == nil {
		return nil
	}
	if s.Token != "" && !s.User.Valid() {
		return ErrCorruptSession
	}
	if s.User.Valid() && s.Token == "" {
		return ErrCorruptSession
	}
	return nil
}

// Clear resets the session to the unauthenticated zero state.
func (s *Session) Clear() {
	s.User = nil
	s.Token = ""
	s.RefreshToken = ""
	s.CreatedAt = time.Time{}
}
