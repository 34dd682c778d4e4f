package features

import (
	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/domain/service"
)

// FeatureColumns is the column order of every feature matrix.
var FeatureColumns = []string{"open", "high", "low", "close", "volume"}

// constantColumnValue is emitted for a column whose min equals its max.
const constantColumnValue = 0.5

// Normalize min-max scales each OHLCV column to [0,1] using only the window's own extremes.
// Scaling statistics are not persisted between requests.
func Normalize(w *models.CandleWindow) service.FeatureMatrix {
	candles := w.Candles()
	if len(candles) == 0 {
		return service.FeatureMatrix{}
	}
	raw := make([][5]float64, len(candles))
	for i, c := range candles {
		raw[i] = [5]float64{c.Open, c.High, c.Low, c.Close, c.Volume}
	}

	var lo, hi [5]float64
	for col := 0; col < 5; col++ {
		lo[col], hi[col] = raw[0][col], raw[0][col]
		for _, row := range raw[1:] {
			if row[col] < lo[col] {
				lo[col] = row[col]
			}
			if row[col] > hi[col] {
				hi[col] = row[col]
			}
		}
	}

	out := make(service.FeatureMatrix, len(raw))
	for i, row := range raw {
		scaled := make([]float64, 5)
		for col := 0; col < 5; col++ {
			span := hi[col] - lo[col]
			if span == 0 {
				scaled[col] = constantColumnValue
				continue
			}
			scaled[col] = (row[col] - lo[col]) / span
		}
		out[i] = scaled
	}
	return out
}
