package credstore

import (
	"sync"
	"time"

	"storefront-session-agent/internal/auth/domain"
)

// Scratch is the short-lived session layer the lifecycle monitor keeps for
// its own bookkeeping: the current user and token plus the last-activity
// instant. It lives and dies with the process; it is never persisted.
type Scratch struct {
	mu           sync.RWMutex
	user         *domain.User
	token        string
	lastActivity time.Time
}

// NewScratch returns an empty scratch layer.
func NewScratch() *Scratch {
	return &Scratch{}
}

// Seed records the session the monitor is tracking and stamps lastActivity.
// Called on the named fresh-login transition, never as an implicit fallback.
func (s *Scratch) Seed(user *domain.User, token string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.token = token
	s.lastActivity = now
}

// Credentials returns the tracked user and token, if any.
func (s *Scratch) Credentials() (*domain.User, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.user.Valid() || s.token == "" {
		return nil, "", false
	}
	return s.user, s.token, true
}

// LastActivity returns the last qualifying interaction instant.
// ok is false when the scratch layer has never been seeded.
func (s *Scratch) LastActivity() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity, !s.lastActivity.IsZero()
}

// Touch updates lastActivity to now.
func (s *Scratch) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// Clear wipes the scratch layer. Safe to call repeatedly.
func (s *Scratch) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
	s.lastActivity = time.Time{}
}
