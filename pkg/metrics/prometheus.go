package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"NeuralTrade/internal/domain/models"
)

const namespace = "neuraltrade"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions      *prometheus.CounterVec
	riskLevels       *prometheus.CounterVec
	rpn              prometheus.Histogram
	shadowAgreement  *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	outcomes         *prometheus.CounterVec
	drift            prometheus.Gauge
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New registers the pipeline collectors on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Predictions by direction",
			},
			[]string{"direction"},
		),
		riskLevels: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_level_total",
				Help:      "Risk assessments by level",
			},
			[]string{"level"},
		),
		rpn: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_priority_number",
				Help:      "Distribution of FMEA risk priority numbers",
				Buckets:   []float64{25, 50, 100, 150, 200, 300, 400, 600, 1000},
			},
		),
		shadowAgreement: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shadow_agreement_total",
				Help:      "Primary/shadow direction comparisons",
			},
			[]string{"agreed"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inference_fallback_total",
				Help:      "Inferences answered with the fallback vector",
			},
			[]string{"role"},
		),
		inferenceLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Classifier call latency",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"role"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Reported prediction outcomes",
			},
			[]string{"correct"},
		),
		drift: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_drift_detected",
				Help:      "1 while recent accuracy is below the drift threshold",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPrediction(direction models.Direction, risk models.RiskLevel, rpn float64) {
	r.predictions.WithLabelValues(string(direction)).Inc()
	r.riskLevels.WithLabelValues(string(risk)).Inc()
	r.rpn.Observe(rpn)
}

func (r *Recorder) RecordShadowAgreement(agreed bool) {
	r.shadowAgreement.WithLabelValues(boolLabel(agreed)).Inc()
}

func (r *Recorder) RecordInferenceFallback(role string) {
	r.fallbacks.WithLabelValues(role).Inc()
}

func (r *Recorder) RecordInferenceLatency(role string, seconds float64) {
	r.inferenceLatency.WithLabelValues(role).Observe(seconds)
}

func (r *Recorder) RecordOutcome(wasCorrect bool) {
	r.outcomes.WithLabelValues(boolLabel(wasCorrect)).Inc()
}

func (r *Recorder) RecordDrift(detected bool) {
	if detected {
		r.drift.Set(1)
		return
	}
	r.drift.Set(0)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
