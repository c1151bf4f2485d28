// Package realtime maintains the event channel to the storefront backend.
// Messages are JSON envelopes of the form {"event": ..., "data": ...}.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"storefront-session-agent/internal/auth"
	"storefront-session-agent/internal/auth/domain"
	"storefront-session-agent/internal/metrics"
)

// Event names on the wire.
const (
	EventAuthSuccess = "auth:success"
	EventHeartbeat   = "user:heartbeat"
	EventLogout      = "user:logout"
)

// reconnectDelay is the pause between connection attempts.
const reconnectDelay = 5 * time.Second

// writeTimeout bounds each outbound write.
const writeTimeout = 10 * time.Second

// Envelope is the wire frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// authPayload is the auth:success event body.
type authPayload struct {
	User         *domain.User `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken,omitempty"`
}

// heartbeatPayload identifies this client instance to the backend.
type heartbeatPayload struct {
	InstanceID string    `json:"instanceId"`
	UserID     string    `json:"userId,omitempty"`
	At         time.Time `json:"at"`
}

// SessionSource is the slice of the auth store the client needs.
type SessionSource interface {
	Session() domain.Session
	ApplyExternalAuth(user *domain.User, token, refreshToken string) error
}

// Client connects to the realtime endpoint, forwards auth events into the
// store, and emits periodic heartbeats while a session is live.
type Client struct {
	url        string
	instanceID string
	store      SessionSource
	heartbeat  time.Duration
	logger     *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New returns an unconnected client.
func New(url, instanceID string, store SessionSource, heartbeat time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		instanceID: instanceID,
		store:      store,
		heartbeat:  heartbeat,
		logger:     logger.With("component", "realtime"),
	}
}

// Run connects and serves the channel until ctx is done, reconnecting after
// transient failures. On shutdown it announces the logout event before
// closing so the backend can drop presence immediately.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.serve(ctx); err != nil {
			c.logger.Warn("realtime channel closed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) serve(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("realtime channel connected", "url", c.url)

	defer func() {
		c.announceLogout()
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	done := make(chan error, 1)
	go func() { done <- c.readLoop(conn) }()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case <-ticker.C:
			c.emitHeartbeat()
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		c.handle(env)
	}
}

// handle dispatches one inbound envelope. Unknown events are ignored.
func (c *Client) handle(env Envelope) {
	switch env.Event {
	case EventAuthSuccess:
		var p authPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("malformed auth event", "error", err)
			return
		}
		if err := c.store.ApplyExternalAuth(p.User, p.Token, p.RefreshToken); err != nil {
			c.logger.Warn("auth event rejected", "error", err)
			return
		}
		c.logger.Info("session applied from realtime auth event", "user", p.User.ID)
	default:
		c.logger.Debug("ignoring realtime event", "event", env.Event)
	}
}

// emitHeartbeat announces liveness. Only sent while a session is held; an
// unauthenticated client stays silent.
func (c *Client) emitHeartbeat() {
	sess := c.store.Session()
	if !sess.IsAuthenticated() {
		return
	}
	err := c.emit(EventHeartbeat, heartbeatPayload{
		InstanceID: c.instanceID,
		UserID:     sess.User.ID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		c.logger.Debug("heartbeat emit failed", "error", err)
		return
	}
	metrics.Heartbeats.Inc()
}

func (c *Client) announceLogout() {
	if err := c.emit(EventLogout, heartbeatPayload{InstanceID: c.instanceID}); err != nil {
		c.logger.Debug("logout announce failed", "error", err)
	}
}

// OnStateChange implements auth.Listener: a transition out of the
// authenticated state announces the logout event on the live channel.
func (c *Client) OnStateChange(e auth.Event) {
	if e.State == domain.StateAuthenticated {
		return
	}
	c.announceLogout()
}

func (c *Client) emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(Envelope{Event: event, Data: raw})
}
