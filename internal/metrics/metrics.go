// Package metrics exposes the engine's Prometheus instrumentation:
// bars ingested, events detected, validation stage outcomes, and
// signals approved/rejected, mounted on the API server's router at
// /metrics (§2).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the engine emits so callers pass one
// value around instead of a dozen globals.
type Registry struct {
	BarsIngested       *prometheus.CounterVec
	EventsDetected     *prometheus.CounterVec
	ValidationOutcomes *prometheus.CounterVec
	SignalsApproved    prometheus.Counter
	SignalsRejected    prometheus.Counter
	SignalLatency      *prometheus.HistogramVec
	OpenPositions      prometheus.Gauge
	PortfolioHeatPct   prometheus.Gauge
}

// New registers and returns the engine's metrics against reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		BarsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wyckoff",
			Name:      "bars_ingested_total",
			Help:      "Total bars ingested by the bar window manager, by symbol and timeframe.",
		}, []string{"symbol", "timeframe"}),

		EventsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wyckoff",
			Name:      "events_detected_total",
			Help:      "Total Wyckoff events detected, by event type and symbol.",
		}, []string{"event_type", "symbol"}),

		ValidationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wyckoff",
			Name:      "validation_stage_outcomes_total",
			Help:      "Validation chain stage outcomes, by stage and status.",
		}, []string{"stage", "status"}),

		SignalsApproved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wyckoff",
			Name:      "signals_approved_total",
			Help:      "Total signals approved from the approval queue.",
		}),

		SignalsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wyckoff",
			Name:      "signals_rejected_total",
			Help:      "Total signals rejected by the validation chain.",
		}),

		SignalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wyckoff",
			Name:      "signal_build_latency_seconds",
			Help:      "Time from pattern detection to signal construction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pattern_type"}),

		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wyckoff",
			Name:      "open_positions",
			Help:      "Current count of open positions across all campaigns.",
		}),

		PortfolioHeatPct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wyckoff",
			Name:      "portfolio_heat_pct",
			Help:      "Current portfolio heat as a percentage of equity at risk.",
		}),
	}
}

// Handler returns the HTTP handler to mount at the configured metrics
// path.
func Handler() http.Handler {
	return promhttp.Handler()
}
