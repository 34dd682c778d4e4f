package risk

import (
	"time"

	"NeuralTrade/internal/domain/models"
)

// Bands are inclusive upper RPN bounds for LOW, MEDIUM and HIGH; anything above High is CRITICAL.
type Bands struct {
	Low    float64
	Medium float64
	High   float64
}

func (b Bands) Classify(rpn float64) models.RiskLevel {
	switch {
	case rpn <= b.Low:
		return models.RiskLow
	case rpn <= b.Medium:
		return models.RiskMedium
	case rpn <= b.High:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

type Config struct {
	MaxDataAge        time.Duration
	MinConfidence     float64
	DriftThreshold    float64
	DriftWindow       int
	HistoryCapacity   int
	VolatilityCandles int
	Bands             Bands
}

func DefaultConfig() Config {
	return Config{
		MaxDataAge:        5 * time.Second,
		MinConfidence:     0.85,
		DriftThreshold:    0.15,
		DriftWindow:       10,
		HistoryCapacity:   DefaultHistoryCapacity,
		VolatilityCandles: 14,
		Bands:             Bands{Low: 100, Medium: 200, High: 400},
	}
}
