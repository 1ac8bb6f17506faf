// Package observability wires the gateway's metrics and tracing. HTTP-level
// collectors live with the middleware; this file holds the domain-level
// collectors shared by the dispatcher and the lifecycle manager.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks live session sockets.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_gateway_active_connections",
		Help: "Number of currently open WhatsApp session connections.",
	})

	// DispatchTotal counts dispatch outcomes per result class.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_gateway_dispatch_total",
		Help: "Inbound message dispatch outcomes.",
	}, []string{"result"})

	// PluginFailures counts swallowed command execution errors per command.
	PluginFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_gateway_plugin_failures_total",
		Help: "Command executions that returned an error or panicked.",
	}, []string{"command"})

	// ReconnectAttempts counts scheduled reconnects.
	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wa_gateway_reconnect_attempts_total",
		Help: "Reconnect attempts scheduled after transient disconnects.",
	})

	// SessionsTerminated counts terminal closes per cause.
	SessionsTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_gateway_sessions_terminated_total",
		Help: "Sessions that reached the terminated state.",
	}, []string{"cause"})
)
