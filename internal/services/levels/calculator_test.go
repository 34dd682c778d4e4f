package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
)

// atrTwoWindow ends with 14 candles whose true range is exactly 2 around a close of 100.
// Earlier candles are deliberately wide so the test fails if they leak into the ATR.
func atrTwoWindow(t *testing.T) *models.CandleWindow {
	t.Helper()
	candles := make([]models.Candle, 50)
	for i := range candles {
		c := models.Candle{Timestamp: int64(i+1) * 3_600_000, Open: 100, High: 101, Low: 99, Close: 100, Volume: 5}
		if i < 36 {
			c.High, c.Low = 130, 70
		}
		candles[i] = c
	}
	w, err := models.NewCandleWindow(models.WindowMeta{Symbol: "BTC/USDT"}, candles, models.DefaultWindowBounds())
	require.NoError(t, err)
	return w
}

func TestCalculateLong(t *testing.T) {
	lv, err := NewCalculator(14).Calculate(models.DirectionLong, atrTwoWindow(t))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, lv.ATR, 1e-9)
	assert.InDelta(t, 100.0, lv.Entry, 1e-9)
	assert.InDelta(t, 97.0, lv.StopLoss, 1e-9)
	require.Len(t, lv.TakeProfits, 3)
	assert.InDelta(t, 102.0, lv.TakeProfits[0], 1e-9)
	assert.InDelta(t, 104.0, lv.TakeProfits[1], 1e-9)
	assert.InDelta(t, 106.0, lv.TakeProfits[2], 1e-9)
	// |102-100| / |100-97|
	assert.InDelta(t, 2.0/3.0, lv.RiskReward, 1e-9)
}

func TestCalculateShort(t *testing.T) {
	lv, err := NewCalculator(14).Calculate(models.DirectionShort, atrTwoWindow(t))
	require.NoError(t, err)

	assert.InDelta(t, 103.0, lv.StopLoss, 1e-9)
	assert.InDeltaSlice(t, []float64{98, 96, 94}, lv.TakeProfits, 1e-9)
}

func TestCalculateNeutral(t *testing.T) {
	lv, err := NewCalculator(14).Calculate(models.DirectionNeutral, atrTwoWindow(t))
	require.NoError(t, err)

	assert.InDelta(t, 98.0, lv.StopLoss, 1e-9)
	assert.InDeltaSlice(t, []float64{102}, lv.TakeProfits, 1e-9)
	assert.InDelta(t, 1.0, lv.RiskReward, 1e-9)
}

func TestCalculateIsPure(t *testing.T) {
	w := atrTwoWindow(t)
	c := NewCalculator(14)
	for _, d := range []models.Direction{models.DirectionLong, models.DirectionShort, models.DirectionNeutral} {
		a, err := c.Calculate(d, w)
		require.NoError(t, err)
		b, err := c.Calculate(d, w)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestRiskRewardZeroRisk(t *testing.T) {
	assert.Equal(t, 1.0, RiskReward(100, 100, 105))
}

func TestCalculateFlatWindowHasZeroATR(t *testing.T) {
	candles := make([]models.Candle, 50)
	for i := range candles {
		candles[i] = models.Candle{Timestamp: int64(i + 1), Open: 10, High: 10, Low: 10, Close: 10}
	}
	w, err := models.NewCandleWindow(models.WindowMeta{}, candles, models.DefaultWindowBounds())
	require.NoError(t, err)

	lv, err := NewCalculator(14).Calculate(models.DirectionLong, w)
	require.NoError(t, err)
	assert.Equal(t, 10.0, lv.StopLoss)
	assert.Equal(t, 1.0, lv.RiskReward)
}
