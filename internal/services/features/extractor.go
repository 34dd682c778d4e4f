package features

import (
	"math"

	"NeuralTrade/internal/domain/models"
)

// TrueRanges returns max(h-l, |h-prevC|, |l-prevC|) for every candle after the first.
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func TrueRanges(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		out = append(out, tr)
	}
	return out
}

// AverageTrueRange takes the last period candles (or all, if fewer) and averages
// their period-1 true ranges. Returns 0 with fewer than two candles.
func AverageTrueRange(candles []models.Candle, period int) float64 {
	if period > 0 && len(candles) > period {
		candles = candles[len(candles)-period:]
	}
	return mean(TrueRanges(candles))
}

// MaxCloseChange returns the largest single-candle |close-prevClose|/prevClose.
func MaxCloseChange(candles []models.Candle) float64 {
	maxChange := 0.0
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		if ch := math.Abs(candles[i].Close-prev) / prev; ch > maxChange {
			maxChange = ch
		}
	}
	return maxChange
}

// MeanRange is the average high-low spread.
func MeanRange(candles []models.Candle) float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High - c.Low
	}
	return mean(out)
}

func MeanClose(candles []models.Candle) float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return mean(out)
}

func MeanVolume(candles []models.Candle) float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return mean(out)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
