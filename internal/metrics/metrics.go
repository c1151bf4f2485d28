// Package metrics exposes the agent's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Logins counts login attempts by result ("success" or "failure").
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_agent_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	// TokenRefreshes counts transparent token refreshes by result.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_agent_token_refreshes_total",
		Help: "Transparent token refreshes by result.",
	}, []string{"result"})

	// ForcedLogouts counts logouts forced by the lifecycle monitor.
	ForcedLogouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_agent_forced_logouts_total",
		Help: "Logouts forced by session timeout.",
	})

	// Heartbeats counts heartbeats emitted on the realtime channel.
	Heartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_agent_heartbeats_total",
		Help: "Heartbeat events emitted on the realtime channel.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
