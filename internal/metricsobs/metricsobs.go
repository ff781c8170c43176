// Package metricsobs wires the server's internal event hooks
// (commands routed, auth denials, coordinator busy/timeout,
// persistence errors, rate-limit rejections) to Prometheus metrics.
package metricsobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mtgturn/turnserver/internal/apperr"
)

var (
	commandsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnserver_commands_routed_total",
		Help: "Total number of inbound commands routed, by type.",
	}, []string{"type"})

	commandsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnserver_commands_rejected_total",
		Help: "Total number of inbound commands rejected, by type and error kind.",
	}, []string{"type", "kind"})

	coordinatorBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnserver_coordinator_busy_total",
		Help: "Total number of ops rejected for exceeding the per-session pending cap.",
	})

	coordinatorTimeout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnserver_coordinator_timeout_total",
		Help: "Total number of ops that timed out waiting for the per-session lock.",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnserver_sessions_active",
		Help: "Current number of in-memory sessions.",
	})

	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnserver_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by scope.",
	}, []string{"scope"})

	persistenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnserver_persistence_errors_total",
		Help: "Total number of persistence operations that failed.",
	})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnserver_connected_clients",
		Help: "Current number of open transport connections.",
	})
)

// Observer implements router.Observer.
type Observer struct{}

func (Observer) CommandRouted(cmdType string) {
	commandsRouted.WithLabelValues(cmdType).Inc()
}

func (Observer) CommandRejected(cmdType string, kind apperr.Kind) {
	commandsRejected.WithLabelValues(cmdType, string(kind)).Inc()
}

func (Observer) PersistenceError() {
	persistenceErrors.Inc()
}

// CoordinatorObserver returns a func matching
// coordinator.WithBusyTimeoutObserver's callback shape.
func CoordinatorObserver() func(sessionID string, busy bool) {
	return func(_ string, busy bool) {
		if busy {
			coordinatorBusy.Inc()
		} else {
			coordinatorTimeout.Inc()
		}
	}
}

// SetSessionsActive reports the current in-memory session count; call
// it from the reaper loop or a short periodic ticker.
func SetSessionsActive(n int) { sessionsActive.Set(float64(n)) }

// SetConnectedClients reports the current open-connection count.
func SetConnectedClients(n int) { connectedClients.Set(float64(n)) }

// RateLimitRejected records a rejection in the named scope:
// "message" or "address_connections".
func RateLimitRejected(scope string) { rateLimitRejections.WithLabelValues(scope).Inc() }

// PersistenceErrorOccurred records a failed save/load/batch op.
func PersistenceErrorOccurred() { persistenceErrors.Inc() }
