package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	signalsIngested *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	connections     prometheus.Gauge
	fallbacks       *prometheus.CounterVec
	upstream        *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signalsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_signals_ingested_total",
				Help: "Signals processed by the ingestion pipeline",
			},
			[]string{"source", "result"},
		),
		broadcasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_broadcasts_total",
				Help: "Events fanned out by the realtime hub",
			},
			[]string{"type"},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_broadcast_deliveries_total",
				Help: "Per-connection deliveries of realtime events",
			},
			[]string{"type"},
		),
		connections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalhub_realtime_connections",
				Help: "Currently registered realtime connections",
			},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_market_fallback_total",
				Help: "Synthetic market data responses",
			},
			[]string{"kind"},
		),
		upstream: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalhub_upstream_duration_seconds",
				Help:    "Market data upstream call duration",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5},
			},
			[]string{"operation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordSignalIngested(source, result string) {
	r.signalsIngested.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordBroadcast(eventType string, delivered int) {
	r.broadcasts.WithLabelValues(eventType).Inc()
	r.deliveries.WithLabelValues(eventType).Add(float64(delivered))
}

func (r *Recorder) SetConnections(n int) {
	r.connections.Set(float64(n))
}

func (r *Recorder) RecordFallback(kind string) {
	r.fallbacks.WithLabelValues(kind).Inc()
}

// RecordUpstreamLatency records upstream latency in seconds.
func (r *Recorder) RecordUpstreamLatency(op string, seconds float64) {
	r.upstream.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
