// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ioea"

var (
	// SessionsCreated counts new sessions by backing store ("durable" or "memory").
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Sessions created, by backing store.",
	}, []string{"store"})

	// SessionResolves counts session lookups by outcome.
	SessionResolves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_resolve_total",
		Help:      "Session lookups, by result.",
	}, []string{"result"})

	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_failures_total",
		Help:      "Rejected login attempts.",
	})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_rejections_total",
		Help:      "Requests rejected by a rate limiter, by limiter name.",
	}, []string{"limiter"})

	// SessionStoreDegraded is 1 while sessions are being written to the
	// in-memory fallback instead of the database.
	SessionStoreDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_store_degraded",
		Help:      "1 when the durable session store is unavailable.",
	})
)

// Resolve outcomes.
const (
	ResolveHit      = "hit"
	ResolveMemory   = "memory"
	ResolveMiss     = "miss"
	ResolveExpired  = "expired"
	ResolveInactive = "inactive"
	ResolveError    = "error"
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
