// Package credstore persists the credential triple (user, token, refresh
// token) that survives agent restarts, plus a short-lived scratch layer used
// by the lifecycle monitor. Storage failures are treated as "no persisted
// session": the caller fails closed rather than assuming authenticated.
package credstore

import (
	"context"
	"encoding/json"
	"errors"

	"storefront-session-agent/internal/auth/domain"
)

// Fixed storage keys. The watcher and the sync layer agree on these.
const (
	KeyUser         = "user"
	KeyToken        = "token"
	KeyRefreshToken = "refresh_token"
)

// ErrInvalidSnapshot is returned by Hydrate when persisted data fails the
// minimal shape check (user with an ID, non-empty token).
var ErrInvalidSnapshot = errors.New("persisted credentials are invalid or partial")

// Store reads and writes the credential keys.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error
	// Delete removes the given keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases the backing resources.
	Close() error
}

// Snapshot is the persisted credential triple in decoded form.
type Snapshot struct {
	User         *domain.User
	Token        string
	RefreshToken string
}

// Write persists the snapshot under the fixed keys. The user record is
// stored as JSON. A partial failure leaves the caller responsible for
// purging (see the auth sync listener).
func Write(ctx context.Context, s Store, snap Snapshot) error {
	raw, err := json.Marshal(snap.User)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, KeyUser, string(raw)); err != nil {
		return err
	}
	if err := s.Put(ctx, KeyToken, snap.Token); err != nil {
		return err
	}
	return s.Put(ctx, KeyRefreshToken, snap.RefreshToken)
}

// Read returns the decoded snapshot without validating it. Absent keys come
// back zero-valued; a user record that fails to decode comes back nil.
func Read(ctx context.Context, s Store) (Snapshot, error) {
	var snap Snapshot
	rawUser, ok, err := s.Get(ctx, KeyUser)
	if err != nil {
		return snap, err
	}
	if ok {
		var u domain.User
		if err := json.Unmarshal([]byte(rawUser), &u); err == nil {
			snap.User = &u
		}
	}
	if v, ok, err := s.Get(ctx, KeyToken); err != nil {
		return snap, err
	} else if ok {
		snap.Token = v
	}
	if v, ok, err := s.Get(ctx, KeyRefreshToken); err != nil {
		return snap, err
	} else if ok {
		snap.RefreshToken = v
	}
	return snap, nil
}

// Purge removes all three credential keys.
func Purge(ctx context.Context, s Store) error {
	return s.Delete(ctx, KeyUser, KeyToken, KeyRefreshToken)
}

// Hydrate reconstructs an authenticated session from storage at startup.
// Invalid or partial data is discarded, the keys are removed, and
// ErrInvalidSnapshot is returned. An entirely empty store yields (nil, nil):
// absence of a session is an expected steady state at cold start.
func Hydrate(ctx context.Context, s Store) (*domain.Session, error) {
	snap, err := Read(ctx, s)
	if err != nil {
		return nil, err
	}
	if snap.User == nil && snap.Token == "" && snap.RefreshToken == "" {
		return nil, nil
	}
	sess := &domain.Session{
		User:         snap.User,
		Token:        snap.Token,
		RefreshToken: snap.RefreshToken,
	}
	if sess.Validate() != nil || !sess.IsAuthenticated() {
		_ = Purge(ctx, s)
		return nil, ErrInvalidSnapshot
	}
	return sess, nil
}
