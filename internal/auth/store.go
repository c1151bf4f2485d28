// Package auth owns the canonical Session and the operations that mutate
// it. All state flows through the Store; persistence and the lifecycle
// monitor observe transitions through registered listeners.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-session-agent/internal/api"
	"storefront-session-agent/internal/auth/domain"
	"storefront-session-agent/internal/metrics"
)

// ErrNotAuthenticated is returned by operations that require a live session.
var ErrNotAuthenticated = errors.New("not authenticated")

// FieldError is a validation failure tied to a single input field. It is
// produced synchronously, before any network call.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Profile is the registration input.
type Profile struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	PictureName     string
	Picture         []byte
}

// Backend is the minimal API surface the store needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.AuthPayload, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthPayload, error)
	CurrentUser(ctx context.Context, token string) (*api.AuthPayload, error)
	Logout(ctx context.Context, token string) error
}

// Event is delivered to listeners on every session state transition.
type Event struct {
	State   domain.State
	Session domain.Session
}

// Listener observes session state transitions. Listener failures must never
// fail the store operation that triggered them.
type Listener interface {
	OnStateChange(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// OnStateChange calls f.
func (f ListenerFunc) OnStateChange(e Event) { f(e) }

// Store is the auth state store.
type Store struct {
	backend Backend
	logger  *slog.Logger

	// InstanceID identifies this client process to the backend.
	InstanceID string

	mu        sync.Mutex
	session   domain.Session
	loading   bool
	lastError string
	listeners []Listener
}

// NewStore returns an unauthenticated store backed by the given API client.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend:    backend,
		logger:     logger.With("component", "auth"),
		InstanceID: uuid.New().String(),
	}
}

// Subscribe registers a listener for state transitions.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Bootstrap seeds the store from a hydrated session before any operation
// runs. Hydration came from storage, so no transition is announced.
func (s *Store) Bootstrap(sess *domain.Session) {
	if sess == nil || !sess.IsAuthenticated() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = *sess
	if s.session.CreatedAt.IsZero() {
		s.session.CreatedAt = time.Now().UTC()
	}
}

// Session returns a copy of the current session.
func (s *Store) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// IsAuthenticated reports whether a live session is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.IsAuthenticated()
}

// Loading reports whether an operation is in flight. Orthogonal to the
// session state, it exists for UI feedback only.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the user-facing message of the most recent failed
// operation, or "" when the last operation succeeded.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Login authenticates with email and password. Inputs are validated before
// any network call; failures surface as a stored human-readable message and
// are never retried automatically.
func (s *Store) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return &FieldError{Field: "password", Message: "password is required"}
	}

	s.setLoading(true)
	defer s.setLoading(false)

	payload, err := s.backend.Login(ctx, email, password)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		s.recordFailure(err)
		return err
	}
	if !payload.User.Valid() || payload.Token == "" {
		metrics.Logins.WithLabelValues("failure").Inc()
		s.recordFailure(api.ErrMalformedResponse)
		return api.ErrMalformedResponse
	}

	metrics.Logins.WithLabelValues("success").Inc()
	s.applyAuthenticated(payload)
	s.logger.Info("login succeeded", "user", payload.User.ID)
	return nil
}

// Register creates an account. Field validation (including the password
// confirmation) happens synchronously; a successful registration does NOT
// authenticate the caller.
func (s *Store) Register(ctx context.Context, p Profile) (*domain.User, error) {
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if err := validateEmail(p.Email); err != nil {
		return nil, err
	}
	if p.Password == "" {
		return nil, &FieldError{Field: "password", Message: "password is required"}
	}
	if p.Password != p.ConfirmPassword {
		return nil, &FieldError{Field: "confirmPassword", Message: "passwords do not match"}
	}

	s.setLoading(true)
	defer s.setLoading(false)

	payload, err := s.backend.Register(ctx, api.RegisterRequest{
		Email:       p.Email,
		Password:    p.Password,
		Name:        strings.TrimSpace(p.Name),
		PictureName: p.PictureName,
		Picture:     p.Picture,
	})
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	if !payload.User.Valid() {
		s.recordFailure(api.ErrMalformedResponse)
		return nil, api.ErrMalformedResponse
	}

	s.clearError()
	s.logger.Info("registration succeeded", "user", payload.User.ID)
	return payload.User, nil
}

// FetchCurrentUser validates an existing token against the backend. It is
// idempotent and safe to call redundantly at startup. Failure is silent (an
// absent session is the expected cold-start state) but clears the session.
func (s *Store) FetchCurrentUser(ctx context.Context) error {
	s.mu.Lock()
	token := s.session.Token
	s.mu.Unlock()

	payload, err := s.backend.CurrentUser(ctx, token)
	if err != nil || !payload.User.Valid() {
		s.clearSession()
		if err == nil {
			err = api.ErrMalformedResponse
		}
		s.logger.Debug("current-user validation failed", "error", err)
		return nil
	}

	if payload.Token == "" {
		// /auth/me may omit the token; the one we presented stays valid.
		payload.Token = token
	}
	if payload.Token == "" {
		s.clearSession()
		return nil
	}
	s.applyAuthenticated(payload)
	return nil
}

// Logout clears the session. The backend call is best-effort fire-and-
// forget; local state clears regardless of its outcome, and calling Logout
// on an already-cleared store is a no-op with the same end state.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.session.Token
	s.mu.Unlock()

	if token != "" {
		if err := s.backend.Logout(ctx, token); err != nil {
			s.logger.Debug("backend logout failed, clearing locally", "error", err)
		}
	}
	s.clearSession()
}

// ApplyExternalAuth applies credentials authenticated elsewhere (realtime
// auth event, sibling process) under the same invariant checks as Login.
func (s *Store) ApplyExternalAuth(user *domain.User, tok, refresh string) error {
	if !user.Valid() || tok == "" {
		return domain.ErrCorruptSession
	}
	s.applyAuthenticated(&api.AuthPayload{User: user, Token: tok, RefreshToken: refresh})
	return nil
}

func (s *Store) applyAuthenticated(p *api.AuthPayload) {
	s.mu.Lock()
	s.session = domain.Session{
		User:         p.User,
		Token:        p.Token,
		RefreshToken: p.RefreshToken,
		CreatedAt:    time.Now().UTC(),
	}
	s.lastError = ""
	snapshot := s.session
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnStateChange(Event{State: snapshot.State(), Session: snapshot})
	}
}

func (s *Store) clearSession() {
	s.mu.Lock()
	s.session.Clear()
	s.lastError = ""
	snapshot := s.session
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnStateChange(Event{State: snapshot.State()})
	}
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) clearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

// recordFailure converts an operation error into the user-facing message.
// Raw transport errors never reach the UI layer.
func (s *Store) recordFailure(err error) {
	msg := "Something went wrong. Please try again."
	switch {
	case errors.Is(err, api.ErrInvalidCredentials):
		msg = "Invalid email or password."
	case errors.Is(err, api.ErrMalformedResponse):
		msg = "Unexpected response from the server."
	case errors.Is(err, api.ErrUnauthorized):
		msg = "Your session has expired. Please sign in again."
	}
	s.logger.Debug("auth operation failed", "error", err)

	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func validateEmail(email string) error {
	if email == "" {
		return &FieldError{Field: "email", Message: "email is required"}
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return &FieldError{Field: "email", Message: "invalid email format"}
	}
	return nil
}
