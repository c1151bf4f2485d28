package auth

import (
	"context"
	"log/slog"
	"time"

	"storefront-session-agent/internal/auth/domain"
	"storefront-session-agent/internal/credstore"
)

// syncTimeout bounds each storage operation triggered by a transition.
const syncTimeout = 5 * time.Second

// SyncListener mirrors session transitions to durable credential storage so
// no call site has to remember to. Transitions into the authenticated state
// write the credential triple; transitions out delete it. Storage errors are
// logged and swallowed: the store operation that triggered the sync must
// complete regardless, and a failed write degrades to a full purge rather
// than leaving partial state behind.
type SyncListener struct {
	store  credstore.Store
	logger *slog.Logger
}

// NewSyncListener returns a persistence sync listener for the given store.
func NewSyncListener(store credstore.Store, logger *slog.Logger) *SyncListener {
	return &SyncListener{
		store:  store,
		logger: logger.With("component", "credsync"),
	}
}

// OnStateChange implements Listener.
func (s *SyncListener) OnStateChange(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if e.State != domain.StateAuthenticated {
		if err := credstore.Purge(ctx, s.store); err != nil {
			s.logger.Warn("credential purge failed", "error", err)
		}
		return
	}

	snap := credstore.Snapshot{
		User:         e.Session.User,
		Token:        e.Session.Token,
		RefreshToken: e.Session.RefreshToken,
	}
	if err := credstore.Write(ctx, s.store, snap); err != nil {
		s.logger.Warn("credential write failed, purging partial state", "error", err)
		if perr := credstore.Purge(ctx, s.store); perr != nil {
			s.logger.Error("credential purge after failed write also failed", "error", perr)
		}
	}
}
