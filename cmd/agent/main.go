package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront-session-agent/internal/api"
	"storefront-session-agent/internal/auth"
	"storefront-session-agent/internal/config"
	"storefront-session-agent/internal/credstore"
	"storefront-session-agent/internal/logging"
	"storefront-session-agent/internal/metrics"
	"storefront-session-agent/internal/monitor"
	"storefront-session-agent/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	creds, err := credstore.NewSQLiteStore(cfg.CredentialDBPath, logger)
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}
	defer creds.Close()

	client := api.NewClient(cfg.APIBaseURL, nil, logger)
	store := auth.NewStore(client, logger)
	scratch := credstore.NewScratch()

	mon := monitor.New(monitor.Config{
		SessionTimeout: cfg.SessionTimeoutDuration(),
		WarningWindow:  cfg.WarningWindowDuration(),
		PollInterval:   cfg.PollIntervalDuration(),
	}, store, scratch, creds, monitor.Hooks{
		OnRedirect: func(loginURL string) {
			logger.Info("redirecting to login", "url", loginURL)
		},
	}, cfg.LoginURL, logger)

	store.Subscribe(auth.NewSyncListener(creds, logger))
	store.Subscribe(mon)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore any persisted session, then revalidate it with the backend.
	// A valid session transitions the store, which seeds the monitor.
	sess, err := credstore.Hydrate(ctx, creds)
	if err != nil {
		logger.Warn("hydration discarded persisted credentials", "error", err)
	}
	if sess != nil {
		store.Bootstrap(sess)
		if err := store.FetchCurrentUser(ctx); err != nil {
			logger.Warn("session revalidation failed", "error", err)
		}
	}

	go mon.Run(ctx)

	watcher, err := credstore.NewWatcher(creds, cfg.CredentialDBPath, logger)
	if err != nil {
		log.Fatalf("credential watcher: %v", err)
	}
	if err := watcher.Start(ctx); err != nil {
		log.Fatalf("credential watcher: %v", err)
	}
	defer watcher.Stop()
	go consumeChanges(ctx, watcher, store, creds, logger)

	if cfg.RealtimeURL != "" {
		rt := realtime.New(cfg.RealtimeURL, store.InstanceID, store, cfg.HeartbeatIntervalDuration(), logger)
		store.Subscribe(rt)
		go rt.Run(ctx)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down session agent...")
	cancel()
	log.Println("session agent stopped")
}

// consumeChanges applies credential changes made by sibling processes. A
// removed token logs this process out; a rewritten credential set is applied
// as an externally authenticated session.
func consumeChanges(ctx context.Context, w *credstore.Watcher, store *auth.Store, creds credstore.Store, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-w.Changes():
			if !ok {
				return
			}
			if change.Key != credstore.KeyToken {
				continue
			}
			if change.NewValue == nil {
				logger.Info("token removed externally, clearing session")
				store.Logout(ctx)
				continue
			}
			snap, err := credstore.Read(ctx, creds)
			if err != nil || snap.User == nil {
				logger.Warn("external credential change unreadable", "error", err)
				continue
			}
			if err := store.ApplyExternalAuth(snap.User, snap.Token, snap.RefreshToken); err != nil {
				logger.Warn("external credentials rejected", "error", err)
			}
		}
	}
}
