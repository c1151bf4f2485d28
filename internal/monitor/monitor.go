// Package monitor enforces the client-side session timeout: it tracks the
// last qualifying user interaction, raises a warning ahead of expiry, and
// forces logout when the inactivity allowance elapses. It exists because the
// backend enforces no session expiry of its own.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storefront-session-agent/internal/auth"
	"storefront-session-agent/internal/auth/domain"
	"storefront-session-agent/internal/credstore"
	"storefront-session-agent/internal/metrics"
)

// ErrNoValidSession is returned by RefreshSession when no live credentials
// are available; the monitor has already degraded to ForceLogout.
var ErrNoValidSession = errors.New("no valid session to refresh")

// Phase is the monitor's lifecycle phase.
type Phase string

// Monitor phases. Idle means no authenticated session is being tracked.
const (
	PhaseIdle    Phase = "idle"
	PhaseActive  Phase = "active"
	PhaseWarning Phase = "warning"
	PhaseExpired Phase = "expired"
)

// Config holds the recognized timeout parameters.
type Config struct {
	// SessionTimeout is the total inactivity allowance.
	SessionTimeout time.Duration
	// WarningWindow is how long before expiry the warning is raised.
	WarningWindow time.Duration
	// PollInterval is the re-evaluation cadence.
	PollInterval time.Duration
}

// Hooks are the UI-facing callbacks. All are optional.
type Hooks struct {
	// OnWarning fires on the transition into the warning phase with the
	// wall-clock time remaining until expiry.
	OnWarning func(remaining time.Duration)
	// OnCountdownTick fires once per second while warning, for display
	// only. The authoritative expiry decision is always recomputed from
	// wall-clock deltas, never from this value.
	OnCountdownTick func(secondsLeft int)
	// OnRedirect fires after a forced logout with the login entry point.
	OnRedirect func(loginURL string)
}

// AuthStore is the slice of the auth store the monitor needs.
type AuthStore interface {
	Session() domain.Session
	Logout(ctx context.Context)
}

// Monitor is the session lifecycle watchdog.
type Monitor struct {
	cfg      Config
	store    AuthStore
	scratch  *credstore.Scratch
	durable  credstore.Store
	hooks    Hooks
	loginURL string
	logger   *slog.Logger
	nowF     func() time.Time

	mu    sync.Mutex
	phase Phase
	// loggedOut guards ForceLogout idempotence; it re-arms on the next
	// authenticated session.
	loggedOut     bool
	countdownStop chan struct{}
}

// New returns an idle monitor. The clock is injectable through SetNow for
// tests; production uses time.Now.
func New(cfg Config, store AuthStore, scratch *credstore.Scratch, durable credstore.Store, hooks Hooks, loginURL string, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		store:    store,
		scratch:  scratch,
		durable:  durable,
		hooks:    hooks,
		loginURL: loginURL,
		logger:   logger.With("component", "monitor"),
		nowF:     func() time.Time { return time.Now().UTC() },
		phase:    PhaseIdle,
	}
}

// SetNow replaces the monitor's clock.
func (m *Monitor) SetNow(nowF func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowF = nowF
}

// Phase returns the current lifecycle phase.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// OnStateChange implements auth.Listener: a fresh authenticated session
// seeds the activity record; a cleared session idles the monitor.
func (m *Monitor) OnStateChange(e auth.Event) {
	if e.State == domain.StateAuthenticated {
		m.SeedActivity(e.Session.User, e.Session.Token)
		return
	}
	// No loggedOut reset here: ForceLogout triggers this transition
	// through the store, and re-arming mid-call would let a second
	// ForceLogout run for the same dead session. SeedActivity re-arms.
	m.mu.Lock()
	m.phase = PhaseIdle
	m.stopCountdownLocked()
	m.mu.Unlock()
	m.scratch.Clear()
}

// SeedActivity hydrates the activity record for a freshly authenticated
// session. This is the named fresh-login transition; it is never invoked as
// an implicit fallback when the record goes missing mid-session.
func (m *Monitor) SeedActivity(user *domain.User, tok string) {
	m.scratch.Seed(user, tok, m.now())
	m.mu.Lock()
	m.phase = PhaseActive
	m.loggedOut = false
	m.stopCountdownLocked()
	m.mu.Unlock()
	m.logger.Debug("activity record seeded")
}

// RecordActivity notes a qualifying user interaction. Ignored while the
// warning or expired dialog is up, so incidental input cannot dismiss it.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	active := m.phase == PhaseActive
	m.mu.Unlock()
	if active {
		m.scratch.Touch(m.now())
	}
}

// RefreshSession extends the session from the warning phase. It requires
// live credentials from the auth store, falling back to the scratch layer;
// with neither it degrades to ForceLogout and returns ErrNoValidSession.
func (m *Monitor) RefreshSession() error {
	m.mu.Lock()
	if m.phase != PhaseWarning {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sess := m.store.Session()
	valid := sess.IsAuthenticated()
	if !valid {
		_, _, valid = m.scratch.Credentials()
	}
	if !valid {
		m.ForceLogout()
		return ErrNoValidSession
	}

	m.scratch.Touch(m.now())
	m.mu.Lock()
	m.phase = PhaseActive
	m.stopCountdownLocked()
	m.mu.Unlock()
	m.logger.Info("session extended from warning")
	return nil
}

// ForceLogout clears all session-scoped storage, logs the store out, and
// fires the redirect hook. Idempotent: repeated calls for the same session
// have no effect beyond the first.
func (m *Monitor) ForceLogout() {
	m.mu.Lock()
	if m.loggedOut {
		m.mu.Unlock()
		return
	}
	m.loggedOut = true
	m.phase = PhaseIdle
	m.stopCountdownLocked()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.scratch.Clear()
	if err := credstore.Purge(ctx, m.durable); err != nil {
		m.logger.Warn("credential purge on forced logout failed", "error", err)
	}
	m.store.Logout(ctx)
	metrics.ForcedLogouts.Inc()
	m.logger.Info("session expired, forced logout")

	if m.hooks.OnRedirect != nil {
		m.hooks.OnRedirect(m.loginURL)
	}
}

// Run evaluates immediately, then on every poll tick until ctx is done.
// Polling, not interaction events, is what catches expiry in an idle tab.
func (m *Monitor) Run(ctx context.Context) {
	m.Evaluate()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.stopCountdownLocked()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// Evaluate recomputes the phase from wall-clock deltas. The warning
// boundary is inclusive: idle == timeout-warningWindow warns, one tick less
// stays active.
func (m *Monitor) Evaluate() {
	sess := m.store.Session()
	if !sess.IsAuthenticated() {
		m.mu.Lock()
		m.phase = PhaseIdle
		m.stopCountdownLocked()
		m.mu.Unlock()
		return
	}

	last, ok := m.scratch.LastActivity()
	if !ok {
		// A session without an activity record means this process did
		// not see the login: the user is returning after an unknown
		// idle period. Distinct from the fresh-login seed on purpose;
		// treat it as expired rather than silently re-seeding.
		m.logger.Info("session present with no activity record, treating as returned after expiry")
		m.expire()
		return
	}

	idle := m.now().Sub(last)
	switch {
	case idle >= m.cfg.SessionTimeout:
		m.expire()
	case idle >= m.cfg.SessionTimeout-m.cfg.WarningWindow:
		m.warn(m.cfg.SessionTimeout - idle)
	default:
		m.mu.Lock()
		if m.phase != PhaseActive {
			m.stopCountdownLocked()
			m.phase = PhaseActive
		}
		m.mu.Unlock()
	}
}

func (m *Monitor) warn(remaining time.Duration) {
	m.mu.Lock()
	if m.phase == PhaseWarning {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseWarning
	stop := make(chan struct{})
	m.countdownStop = stop
	m.mu.Unlock()

	m.logger.Info("session expiring soon", "remaining", remaining)
	if m.hooks.OnWarning != nil {
		m.hooks.OnWarning(remaining)
	}
	go m.countdown(int(remaining/time.Second), stop)
}

func (m *Monitor) expire() {
	m.mu.Lock()
	alreadyIdle := m.phase == PhaseExpired || m.loggedOut
	m.phase = PhaseExpired
	m.stopCountdownLocked()
	m.mu.Unlock()
	if alreadyIdle {
		return
	}
	m.ForceLogout()
}

// countdown drives the cosmetic per-second display while warning. When it
// reaches zero it triggers a wall-clock re-evaluation; the countdown value
// itself never decides expiry, so tab sleep cannot desynchronize the two.
func (m *Monitor) countdown(seconds int, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for left := seconds; left > 0; {
		select {
		case <-stop:
			return
		case <-ticker.C:
			left--
			if m.hooks.OnCountdownTick != nil {
				m.hooks.OnCountdownTick(left)
			}
		}
	}
	m.Evaluate()
}

func (m *Monitor) stopCountdownLocked() {
	if m.countdownStop != nil {
		close(m.countdownStop)
		m.countdownStop = nil
	}
}

func (m *Monitor) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowF()
}
