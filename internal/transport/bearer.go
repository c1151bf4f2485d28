// Package transport wraps an http.RoundTripper so every outgoing request
// carries the stored bearer credential, with exactly one transparent
// refresh-and-retry on an authorization failure.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"storefront-session-agent/internal/credstore"
	"storefront-session-agent/internal/metrics"
)

// RefreshFunc mints a new credential pair from a refresh token. It is
// awaited to completion before the retried request is issued.
type RefreshFunc func(ctx context.Context, refreshToken string) (token, refreshToken2 string, err error)

// Bearer is the credential-attaching round tripper.
type Bearer struct {
	// Base performs the actual requests; nil means http.DefaultTransport.
	Base http.RoundTripper
	// Creds is where tokens are read from and rotated into.
	Creds credstore.Store
	// Refresh mints replacement credentials on a 401.
	Refresh RefreshFunc
	// OnAuthFailure runs after an irrecoverable 401 (refresh failed, no
	// refresh token, or the retry failed again): purge plus redirect hook.
	OnAuthFailure func()
	Logger        *slog.Logger

	// refreshMu serializes refreshes so concurrent 401s rotate once.
	refreshMu sync.Mutex
}

// NewClient returns an http.Client whose requests carry the stored bearer
// credential and get the single refresh-and-retry on a 401.
func NewClient(creds credstore.Store, refresh RefreshFunc, onAuthFailure func(), logger *slog.Logger) *http.Client {
	return &http.Client{
		Transport: &Bearer{
			Creds:         creds,
			Refresh:       refresh,
			OnAuthFailure: onAuthFailure,
			Logger:        logger,
		},
	}
}

// RoundTrip implements http.RoundTripper.
func (b *Bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, _, err := b.Creds.Get(ctx, credstore.KeyToken)
	if err != nil {
		// Storage failure reads as "no persisted session"; send
		// unauthenticated rather than failing the request.
		b.logger().Warn("token read failed, sending unauthenticated", "error", err)
		token = ""
	}

	out := req.Clone(ctx)
	b.decorate(out, token)

	resp, err := b.base().RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// One refresh, one retry, then fail closed. Never loop.
	newToken, ok := b.tryRefresh(ctx)
	if !ok {
		b.failClosed(ctx)
		return resp, nil
	}

	retry, ok := cloneForRetry(req)
	if !ok {
		// Non-replayable body; surface the original 401.
		return resp, nil
	}
	resp.Body.Close()

	b.decorate(retry, newToken)
	retryResp, err := b.base().RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusUnauthorized {
		b.failClosed(ctx)
	}
	return retryResp, nil
}

// decorate attaches the bearer header and the content type. A multipart
// body keeps the content type the caller set (the boundary lives there);
// everything else with a body defaults to JSON.
func (b *Bearer) decorate(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	ct := req.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/") {
		return
	}
	if req.Body != nil && ct == "" {
		req.Header.Set("Content-Type", "application/json")
	}
}

// tryRefresh rotates the credential pair through the refresh endpoint and
// persists the result. Returns ok false when no refresh token is stored or
// the refresh itself is rejected.
func (b *Bearer) tryRefresh(ctx context.Context) (string, bool) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	refreshToken, ok, err := b.Creds.Get(ctx, credstore.KeyRefreshToken)
	if err != nil || !ok || refreshToken == "" {
		return "", false
	}

	newToken, newRefresh, err := b.Refresh(ctx, refreshToken)
	if err != nil || newToken == "" {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		b.logger().Info("token refresh rejected", "error", err)
		return "", false
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()

	if err := b.Creds.Put(ctx, credstore.KeyToken, newToken); err != nil {
		b.logger().Warn("persist refreshed token failed", "error", err)
	}
	if newRefresh != "" {
		if err := b.Creds.Put(ctx, credstore.KeyRefreshToken, newRefresh); err != nil {
			b.logger().Warn("persist rotated refresh token failed", "error", err)
		}
	}

	b.logger().Debug("token refreshed after 401")
	return newToken, true
}

func (b *Bearer) failClosed(ctx context.Context) {
	_ = credstore.Purge(ctx, b.Creds)
	if b.OnAuthFailure != nil {
		b.OnAuthFailure()
	}
}

func (b *Bearer) base() http.RoundTripper {
	if b.Base != nil {
		return b.Base
	}
	return http.DefaultTransport
}

func (b *Bearer) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// cloneForRetry clones a request for the single retry. Requests with a
// consumed, non-replayable body cannot be retried.
func cloneForRetry(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil {
		return clone, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}
