package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsApplied *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	coalesced     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	mode          *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapedeck_events_applied_total",
				Help: "Total number of events applied by the store",
			},
			[]string{"kind"},
		),
		eventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapedeck_events_dropped_total",
				Help: "Total number of events dropped by the store (mode gate, unknown symbol, full queue)",
			},
			[]string{"kind"},
		),
		coalesced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapedeck_events_coalesced_total",
				Help: "Total number of pending events superseded on the bus",
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapedeck_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tapedeck_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tapedeck_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		mode: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tapedeck_mode",
				Help: "Current operating mode (1 for the active mode label)",
			},
			[]string{"mode"},
		),
	}
}

// RecordEvent records one event routed through the store.
func (r *Recorder) RecordEvent(kind string, applied bool) {
	if applied {
		r.eventsApplied.WithLabelValues(kind).Inc()
		return
	}
	r.eventsDropped.WithLabelValues(kind).Inc()
}

// RecordCoalesced records a pending event replaced by a newer one.
func (r *Recorder) RecordCoalesced(kind string) {
	r.coalesced.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordMode marks the active mode gauge.
func (r *Recorder) RecordMode(mode string) {
	for _, m := range []string{"idle", "live", "backtest"} {
		v := 0.0
		if m == mode {
			v = 1.0
		}
		r.mode.WithLabelValues(m).Set(v)
	}
}
