package repository

import (
	"context"

	"NeuralTrade/internal/domain/models"
)

// SignalPublisher delivers finished predictions to a downstream channel (Kafka topic, WebSocket hub).
type SignalPublisher interface {
	Name() string
	Publish(ctx context.Context, s *models.SignalPrediction) error
}

// SignalStore persists predictions and their outcomes for offline analysis.
type SignalStore interface {
	Init(ctx context.Context) error // ensure tables
	SavePrediction(ctx context.Context, s *models.SignalPrediction) error
	SaveOutcome(ctx context.Context, o models.Outcome) error
	Health(ctx context.Context) error
	Close() error
}

// PredictionCache keeps recent predictions addressable by ID.
type PredictionCache interface {
	Put(ctx context.Context, s *models.SignalPrediction) error
	Get(ctx context.Context, id string) (*models.SignalPrediction, bool, error)
}

type Metrics interface {
	RecordPrediction(direction models.Direction, risk models.RiskLevel, rpn float64)
	RecordShadowAgreement(agreed bool)
	RecordInferenceFallback(role string)
	RecordInferenceLatency(role string, seconds float64)
	RecordOutcome(wasCorrect bool)
	RecordDrift(detected bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics satisfies Metrics for tests and the CLI.
type NopMetrics struct{}

func (NopMetrics) RecordPrediction(models.Direction, models.RiskLevel, float64) {}
func (NopMetrics) RecordShadowAgreement(bool)                                  {}
func (NopMetrics) RecordInferenceFallback(string)                              {}
func (NopMetrics) RecordInferenceLatency(string, float64)                      {}
func (NopMetrics) RecordOutcome(bool)                                          {}
func (NopMetrics) RecordDrift(bool)                                            {}
func (NopMetrics) RecordError(string)                                          {}
func (NopMetrics) RecordLatency(string, float64)                               {}
