package metrics

import (
	"ModelHub/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	phaseTime   *prometheus.HistogramVec
	evaluation  *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer lets tests use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelhub_training_runs_total",
				Help: "Training runs by family and terminal result",
			},
			[]string{"family", "result"},
		),
		phaseTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelhub_training_duration_seconds",
				Help:    "Duration of the fit and evaluate phases",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"family", "phase"},
		),
		evaluation: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelhub_evaluation_metric",
				Help: "Latest held-out metric per family",
			},
			[]string{"family", "metric"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelhub_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelhub_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRun counts a finished run; result is the terminal state or error kind.
func (r *Recorder) RecordRun(family, result string) {
	r.runsTotal.WithLabelValues(family, result).Inc()
}

func (r *Recorder) RecordPhase(family, phase string, seconds float64) {
	r.phaseTime.WithLabelValues(family, phase).Observe(seconds)
}

// RecordEvaluation publishes the latest metrics; an undefined MAPE is left untouched.
func (r *Recorder) RecordEvaluation(family string, m *models.EvaluationMetrics) {
	if m == nil {
		return
	}
	for name, v := range m.Map() {
		r.evaluation.WithLabelValues(family, name).Set(v)
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
