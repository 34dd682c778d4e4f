package inference

import (
	"context"

	"NeuralTrade/internal/domain/models"
	domsvc "NeuralTrade/internal/domain/service"
)

// FallbackClassifier stands in for a model that is not loaded.
// It always answers FallbackProbabilities, whose argmax is hold.
type FallbackClassifier struct {
	info models.ModelInfo
}

func NewFallbackClassifier(info models.ModelInfo) *FallbackClassifier {
	info.Loaded = false
	return &FallbackClassifier{info: info}
}

func (f *FallbackClassifier) Infer(context.Context, domsvc.FeatureMatrix) (models.ProbabilityVector, error) {
	return models.FallbackProbabilities, nil
}

func (f *FallbackClassifier) Info() models.ModelInfo { return f.info }

var _ domsvc.Classifier = (*FallbackClassifier)(nil)
