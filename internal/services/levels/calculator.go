package levels

import (
	"fmt"
	"math"

	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/services/features"
)

const (
	DefaultATRPeriod = 14

	stopATRMultiple   = 1.5
	neutralStopFactor = 0.98
	neutralTakeFactor = 1.02
)

var takeProfitATRMultiples = []float64{1, 2, 3}

// Calculator derives entry, stop-loss and take-profit prices from ATR.
type Calculator struct {
	period int
}

func NewCalculator(period int) *Calculator {
	if period < 2 {
		period = DefaultATRPeriod
	}
	return &Calculator{period: period}
}

// Calculate is pure: the same direction and window always give the same levels.
func (c *Calculator) Calculate(direction models.Direction, w *models.CandleWindow) (models.Levels, error) {
	tail := w.Tail(c.period)
	if len(tail) < 2 {
		return models.Levels{}, fmt.Errorf("%w: need at least 2 candles for ATR, got %d", models.ErrInvalidWindow, len(tail))
	}

	price := w.Last().Close
	atr := features.AverageTrueRange(tail, c.period)

	lv := models.Levels{Entry: price, ATR: atr}
	switch direction {
	case models.DirectionLong:
		lv.StopLoss = price - stopATRMultiple*atr
		for _, m := range takeProfitATRMultiples {
			lv.TakeProfits = append(lv.TakeProfits, price+m*atr)
		}
	case models.DirectionShort:
		lv.StopLoss = price + stopATRMultiple*atr
		for _, m := range takeProfitATRMultiples {
			lv.TakeProfits = append(lv.TakeProfits, price-m*atr)
		}
	default:
		lv.StopLoss = price * neutralStopFactor
		lv.TakeProfits = []float64{price * neutralTakeFactor}
	}

	lv.RiskReward = RiskReward(lv.Entry, lv.StopLoss, lv.TakeProfits[0])
	return lv, nil
}

// RiskReward is |target-entry| / |entry-stop|, or 1.0 when there is no risk.
func RiskReward(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 1.0
	}
	return math.Abs(target-entry) / risk
}
