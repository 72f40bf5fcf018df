package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus registry, addressed by name and
// labels. It is constructed once in cmd/bot/main.go and passed down by
// reference everywhere else; every emitter is non-blocking.
type Metrics struct {
	Registry *prometheus.Registry

	FeedLatencyMs        *prometheus.HistogramVec
	FeedEventsTotal      *prometheus.CounterVec
	GateBlocksTotal      *prometheus.CounterVec
	SignalsDetected      *prometheus.CounterVec
	SignalEdgeBps        *prometheus.HistogramVec
	NoncesIssued         prometheus.Counter
	SessionSendsTotal    *prometheus.CounterVec
	SessionTimeoutsTotal prometheus.Counter
	OrdersByState        *prometheus.CounterVec
	HardStopTrips        prometheus.Counter
	PositionNotionalUSD  *prometheus.GaugeVec
	StoreDropsTotal      prometheus.Counter
}

// NewMetrics builds and registers every gauge/counter/histogram the core
// emits. Registration panics are avoided by constructing a fresh registry
// rather than using prometheus.DefaultRegisterer, so repeated calls in tests
// never collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		FeedLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hip3",
			Subsystem: "feed",
			Name:      "latency_ms",
			Help:      "Age of the field used at detection time, in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"market", "field"}),
		FeedEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Feed events processed, by type and outcome.",
		}, []string{"event_type", "outcome"}),
		GateBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "risk",
			Name:      "gate_blocks_total",
			Help:      "Risk-gate blocks by gate name.",
		}, []string{"gate", "market"}),
		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "detector",
			Name:      "signals_total",
			Help:      "Dislocation signals detected, by market, side and strength.",
		}, []string{"market", "side", "strength"}),
		SignalEdgeBps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hip3",
			Subsystem: "detector",
			Name:      "net_edge_bps",
			Help:      "Net edge in bps of emitted signals.",
			Buckets:   []float64{2, 5, 10, 15, 25, 50, 100},
		}, []string{"market", "side"}),
		NoncesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "execution",
			Name:      "nonces_issued_total",
			Help:      "Total nonces issued by the nonce manager.",
		}),
		SessionSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "execution",
			Name:      "session_sends_total",
			Help:      "Duplex session send outcomes.",
		}, []string{"result"}),
		SessionTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "execution",
			Name:      "session_timeouts_total",
			Help:      "Waiters released by timeout without an ack.",
		}),
		OrdersByState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "execution",
			Name:      "order_state_transitions_total",
			Help:      "Order-state-machine transitions by resulting state.",
		}, []string{"state"}),
		HardStopTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "risk",
			Name:      "hard_stop_trips_total",
			Help:      "Times the hard-stop latch has been tripped (should be >=0, rarely >0).",
		}),
		PositionNotionalUSD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hip3",
			Subsystem: "position",
			Name:      "notional_usd",
			Help:      "Absolute open-position notional per market.",
		}, []string{"market"}),
		StoreDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hip3",
			Subsystem: "store",
			Name:      "signal_drops_total",
			Help:      "Signal records dropped because the persistence channel was full.",
		}),
	}

	reg.MustRegister(
		m.FeedLatencyMs, m.FeedEventsTotal, m.GateBlocksTotal, m.SignalsDetected,
		m.SignalEdgeBps, m.NoncesIssued, m.SessionSendsTotal, m.SessionTimeoutsTotal,
		m.OrdersByState, m.HardStopTrips, m.PositionNotionalUSD, m.StoreDropsTotal,
	)
	return m
}

// Handler returns the Prometheus exposition endpoint for this registry,
// mounted by the dashboard server at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
