package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
)

var _ domrepo.Metrics = (*Recorder)(nil)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordPrediction(models.DirectionLong, models.RiskHigh, 224)
	r.RecordPrediction(models.DirectionLong, models.RiskLow, 36)
	r.RecordInferenceFallback("shadow")
	r.RecordOutcome(false)
	r.RecordDrift(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.predictions.WithLabelValues("long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.riskLevels.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("shadow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.drift))

	r.RecordDrift(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.drift))
}
