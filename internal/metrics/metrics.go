// Package metrics exposes the broker's runtime counters and gauges as a
// Prometheus scrape endpoint. It owns its own registry rather than the
// global DefaultRegisterer so a Collector can be constructed more than once
// in tests without colliding.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sessionbroker/broker/internal/policy"
)

// Collector records the broker's observable events. The zero value is not
// usable; construct with New.
type Collector struct {
	registry *prometheus.Registry

	broadcastDrops *prometheus.CounterVec
	rateLimitDrops *prometheus.CounterVec
	idleReaps      prometheus.Counter
	breakerState   *prometheus.GaugeVec
	breakerTrips   *prometheus.CounterVec
}

// New builds a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		broadcastDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "broker_broadcast_drops_total",
			Help: "Backend-to-consumer broadcast frames dropped because a consumer's send buffer was full.",
		}, []string{"session_id"}),
		rateLimitDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "broker_rate_limit_drops_total",
			Help: "Inbound consumer messages rejected by a session's rate limiter.",
		}, []string{"session_id"}),
		idleReaps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "broker_idle_reaps_total",
			Help: "Sessions closed by the idle reaper for having no backend and no consumers past the idle timeout.",
		}),
		breakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_circuit_breaker_state",
			Help: "Adapter circuit breaker state: 0=closed, 1=half_open, 2=open.",
		}, []string{"adapter"}),
		breakerTrips: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "broker_circuit_breaker_trips_total",
			Help: "Times an adapter's circuit breaker transitioned into the open state.",
		}, []string{"adapter"}),
	}
	return c
}

// Handler serves the registry in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordBroadcastDrop implements transport.DropRecorder.
func (c *Collector) RecordBroadcastDrop(sessionID string) {
	c.broadcastDrops.WithLabelValues(sessionID).Inc()
}

// RecordRateLimitDrop records a consumer message rejected by a session's
// rate limiter.
func (c *Collector) RecordRateLimitDrop(sessionID string) {
	c.rateLimitDrops.WithLabelValues(sessionID).Inc()
}

// RecordIdleReap records a session the idle reaper closed.
func (c *Collector) RecordIdleReap() {
	c.idleReaps.Inc()
}

// ObserveBreakerState records an adapter circuit breaker's state after a
// ConnectBackend attempt recorded success or failure against it. It also
// bumps the trip counter on every call that observes the open state; the
// method keeps no record of the previous state.
func (c *Collector) ObserveBreakerState(adapterName string, state policy.BreakerState) {
	c.breakerState.WithLabelValues(adapterName).Set(breakerStateValue(state))
	if state == policy.StateOpen {
		c.breakerTrips.WithLabelValues(adapterName).Inc()
	}
}

func breakerStateValue(state policy.BreakerState) float64 {
	switch state {
	case policy.StateHalfOpen:
		return 1
	case policy.StateOpen:
		return 2
	default:
		return 0
	}
}
