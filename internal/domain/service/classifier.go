package service

import (
	"context"

	"NeuralTrade/internal/domain/models"
)

// FeatureMatrix is one row per candle: open, high, low, close, volume, each scaled to [0,1].
type FeatureMatrix [][]float64

// Classifier maps a feature matrix to a sell/hold/buy probability vector.
// Implementations are either backed by a real model or a deterministic fallback.
type Classifier interface {
	Infer(ctx context.Context, features FeatureMatrix) (models.ProbabilityVector, error)
	Info() models.ModelInfo
}
