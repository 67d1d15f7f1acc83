package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks       *prometheus.CounterVec
	tickLatency prometheus.Histogram
	rules       *prometheus.CounterVec
	unresolved  *prometheus.CounterVec
	checkErrors *prometheus.CounterVec
	transitions *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	skipped     *prometheus.CounterVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_ticks_total",
				Help: "Scanner ticks by result",
			},
			[]string{"result"},
		),
		tickLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "setupscan_tick_duration_seconds",
				Help:    "Duration of one scanner tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		rules: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_rule_evaluations_total",
				Help: "Rule evaluations by check kind and result",
			},
			[]string{"kind", "result"},
		),
		unresolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_unresolved_rules_total",
				Help: "Rules that matched no check kind",
			},
			[]string{"rule"},
		),
		checkErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_check_errors_total",
				Help: "Checks that panicked or errored",
			},
			[]string{"kind"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_phase_transitions_total",
				Help: "Phase transitions by source, target and reason",
			},
			[]string{"from", "to", "reason"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_candle_fetch_errors_total",
				Help: "Candle fetch failures by timeframe",
			},
			[]string{"timeframe"},
		),
		skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupscan_skipped_total",
				Help: "Keys skipped during a tick by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordTick records one finished tick.
func (r *Recorder) RecordTick(result string, seconds float64) {
	r.ticks.WithLabelValues(result).Inc()
	r.tickLatency.Observe(seconds)
}

func (r *Recorder) RecordRule(kind, result string) {
	r.rules.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordUnresolvedRule(rule string) {
	r.unresolved.WithLabelValues(rule).Inc()
}

func (r *Recorder) RecordCheckError(kind string) {
	r.checkErrors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordTransition(from, to, reason string) {
	r.transitions.WithLabelValues(from, to, reason).Inc()
}

func (r *Recorder) RecordFetchError(timeframe string) {
	r.fetchErrors.WithLabelValues(timeframe).Inc()
}

func (r *Recorder) RecordSkipped(reason string) {
	r.skipped.WithLabelValues(reason).Inc()
}
