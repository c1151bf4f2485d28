package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"storefront-session-agent/internal/api"
	"storefront-session-agent/internal/auth/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	mu sync.Mutex

	loginPayload *api.AuthPayload
	loginErr     error
	loginCalls   int
	loginHook    func()

	registerPayload *api.AuthPayload
	registerErr     error

	currentPayload *api.AuthPayload
	currentErr     error

	logoutErr   error
	logoutCalls int
}

func (b *fakeBackend) Login(ctx context.Context, email, password string) (*api.AuthPayload, error) {
	b.mu.Lock()
	hook := b.loginHook
	b.loginCalls++
	payload, err := b.loginPayload, b.loginErr
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return payload, err
}

func (b *fakeBackend) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registerPayload, b.registerErr
}

func (b *fakeBackend) CurrentUser(ctx context.Context, token string) (*api.AuthPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentPayload, b.currentErr
}

func (b *fakeBackend) Logout(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutCalls++
	return b.logoutErr
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordingListener) OnStateChange(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingListener) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func validPayload() *api.AuthPayload {
	return &api.AuthPayload{
		User:         &domain.User{ID: "u1", Email: "a@b.com", Name: "Ada"},
		Token:        "tok",
		RefreshToken: "ref",
	}
}

func TestLoginSuccessNotifiesListeners(t *testing.T) {
	backend := &fakeBackend{loginPayload: validPayload()}
	s := NewStore(backend, testLogger())
	rec := &recordingListener{}
	s.Subscribe(rec)

	if err := s.Login(context.Background(), "A@B.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("store not authenticated after login")
	}
	if s.LastError() != "" {
		t.Errorf("LastError = %q", s.LastError())
	}

	events := rec.all()
	if len(events) != 1 || events[0].State != domain.StateAuthenticated {
		t.Fatalf("events = %+v, want one authenticated transition", events)
	}
	if events[0].Session.Token != "tok" {
		t.Errorf("event session token = %q", events[0].Session.Token)
	}
}

func TestLoginValidatesBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend, testLogger())

	cases := []struct {
		name, email, password, field string
	}{
		{"empty email", "", "pw", "email"},
		{"bad email", "not-an-email", "pw", "email"},
		{"empty password", "a@b.com", "", "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Login(context.Background(), tc.email, tc.password)
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("got %v, want FieldError", err)
			}
			if fieldErr.Field != tc.field {
				t.Errorf("Field = %q, want %q", fieldErr.Field, tc.field)
			}
		})
	}
	if backend.loginCalls != 0 {
		t.Errorf("backend called %d times for invalid input", backend.loginCalls)
	}
}

func TestLoginFailureRecordsMessage(t *testing.T) {
	backend := &fakeBackend{loginErr: api.ErrInvalidCredentials}
	s := NewStore(backend, testLogger())
	rec := &recordingListener{}
	s.Subscribe(rec)

	if err := s.Login(context.Background(), "a@b.com", "wrong"); !errors.Is(err, api.ErrInvalidCredentials) {
		t.Fatalf("got %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("failed login authenticated the store")
	}
	if got := s.LastError(); got != "Invalid email or password." {
		t.Errorf("LastError = %q", got)
	}
	if len(rec.all()) != 0 {
		t.Error("failed login produced a transition")
	}
	if backend.loginCalls != 1 {
		t.Errorf("backend called %d times, want 1 (no automatic retry)", backend.loginCalls)
	}
}

func TestLoginMalformedResponse(t *testing.T) {
	backend := &fakeBackend{loginPayload: &api.AuthPayload{Token: "tok"}}
	s := NewStore(backend, testLogger())

	if err := s.Login(context.Background(), "a@b.com", "pw"); !errors.Is(err, api.ErrMalformedResponse) {
		t.Fatalf("got %v, want ErrMalformedResponse", err)
	}
	if s.IsAuthenticated() {
		t.Error("malformed payload authenticated the store")
	}
}

func TestLoadingFlagTracksOperation(t *testing.T) {
	backend := &fakeBackend{loginPayload: validPayload()}
	s := NewStore(backend, testLogger())

	if s.Loading() {
		t.Fatal("idle store reports loading")
	}
	backend.loginHook = func() {
		if !s.Loading() {
			t.Error("Loading false while the backend call is in flight")
		}
	}

	if err := s.Login(context.Background(), "a@b.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Loading() {
		t.Error("Loading stuck after the operation completed")
	}
}

func TestRegisterNeverAuthenticates(t *testing.T) {
	backend := &fakeBackend{registerPayload: &api.AuthPayload{User: &domain.User{ID: "u1", Email: "a@b.com"}}}
	s := NewStore(backend, testLogger())
	rec := &recordingListener{}
	s.Subscribe(rec)

	user, err := s.Register(context.Background(), Profile{
		Email:           "a@b.com",
		Password:        "pw",
		ConfirmPassword: "pw",
		Name:            "Ada",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user = %+v", user)
	}
	if s.IsAuthenticated() {
		t.Error("registration authenticated the store")
	}
	if len(rec.all()) != 0 {
		t.Error("registration produced a transition")
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	s := NewStore(&fakeBackend{}, testLogger())

	_, err := s.Register(context.Background(), Profile{
		Email:           "a@b.com",
		Password:        "pw1",
		ConfirmPassword: "pw2",
	})
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "confirmPassword" {
		t.Fatalf("got %v, want confirmPassword FieldError", err)
	}
}

func TestFetchCurrentUserSilentFailureClearsSession(t *testing.T) {
	backend := &fakeBackend{currentErr: api.ErrUnauthorized}
	s := NewStore(backend, testLogger())
	s.Bootstrap(&domain.Session{User: &domain.User{ID: "u1"}, Token: "stale"})
	rec := &recordingListener{}
	s.Subscribe(rec)

	if err := s.FetchCurrentUser(context.Background()); err != nil {
		t.Fatalf("FetchCurrentUser must not surface the failure, got %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("session survived a rejected validation")
	}
	events := rec.all()
	if len(events) != 1 || events[0].State != domain.StateUnauthenticated {
		t.Errorf("events = %+v, want one unauthenticated transition", events)
	}
}

func TestFetchCurrentUserKeepsPresentedToken(t *testing.T) {
	// /auth/me responds with the user only; the token we presented stays.
	backend := &fakeBackend{currentPayload: &api.AuthPayload{User: &domain.User{ID: "u1"}}}
	s := NewStore(backend, testLogger())
	s.Bootstrap(&domain.Session{User: &domain.User{ID: "u1"}, Token: "tok"})

	if err := s.FetchCurrentUser(context.Background()); err != nil {
		t.Fatalf("FetchCurrentUser: %v", err)
	}
	if got := s.Session().Token; got != "tok" {
		t.Errorf("token = %q, want the presented one kept", got)
	}
}

func TestBootstrapDoesNotNotify(t *testing.T) {
	s := NewStore(&fakeBackend{}, testLogger())
	rec := &recordingListener{}
	s.Subscribe(rec)

	s.Bootstrap(&domain.Session{User: &domain.User{ID: "u1"}, Token: "tok"})
	if !s.IsAuthenticated() {
		t.Fatal("bootstrap did not seed the session")
	}
	if len(rec.all()) != 0 {
		t.Error("hydration announced a transition")
	}

	// Partial sessions are refused.
	s2 := NewStore(&fakeBackend{}, testLogger())
	s2.Bootstrap(&domain.Session{Token: "tok"})
	if s2.IsAuthenticated() {
		t.Error("partial session accepted by Bootstrap")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	backend := &fakeBackend{loginPayload: validPayload(), logoutErr: errors.New("backend down")}
	s := NewStore(backend, testLogger())
	rec := &recordingListener{}
	s.Subscribe(rec)

	if err := s.Login(context.Background(), "a@b.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Backend failure still clears local state.
	s.Logout(context.Background())
	if s.IsAuthenticated() {
		t.Fatal("still authenticated after logout")
	}

	// Second logout: same end state, no backend call (no token to revoke).
	s.Logout(context.Background())
	if backend.logoutCalls != 1 {
		t.Errorf("backend logout called %d times, want 1", backend.logoutCalls)
	}
	if s.IsAuthenticated() {
		t.Error("second logout changed the end state")
	}
}

func TestApplyExternalAuth(t *testing.T) {
	s := NewStore(&fakeBackend{}, testLogger())
	rec := &recordingListener{}
	s.Subscribe(rec)

	if err := s.ApplyExternalAuth(&domain.User{ID: "u1"}, "tok", "ref"); err != nil {
		t.Fatalf("ApplyExternalAuth: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("external auth not applied")
	}
	if len(rec.all()) != 1 {
		t.Error("external auth did not announce a transition")
	}

	if err := s.ApplyExternalAuth(&domain.User{ID: "u1"}, "", ""); !errors.Is(err, domain.ErrCorruptSession) {
		t.Errorf("tokenless external auth: got %v, want ErrCorruptSession", err)
	}
	if err := s.ApplyExternalAuth(nil, "tok", ""); !errors.Is(err, domain.ErrCorruptSession) {
		t.Errorf("userless external auth: got %v, want ErrCorruptSession", err)
	}
}
