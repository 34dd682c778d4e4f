package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
	pkgkafka "NeuralTrade/pkg/kafka"
)

func candleEvent(t *testing.T, n int, mutate func(*models.PredictRequest)) []byte {
	t.Helper()
	req := models.PredictRequest{Exchange: "binance", Symbol: "BTC/USDT", Timeframe: "1h"}
	for _, c := range steadyCandles(n) {
		req.Candles = append(req.Candles, models.CandleInput(c))
	}
	if mutate != nil {
		mutate(&req)
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func TestKafkaCandlesHandler(t *testing.T) {
	store := &memStore{}
	writer := &memCandles{}
	p := newTestPredictor([]float64{0.05, 0.05, 0.9}, []float64{0.05, 0.05, 0.9}, WithSignalStore(store))
	h := NewKafkaCandlesHandler("market.candles", p, writer, nil, nil)

	assert.Equal(t, "market.candles", h.Topic())
	require.NoError(t, h.Handle(context.Background(), candleEvent(t, 60, nil)))
	assert.Equal(t, 60, writer.saved)
	assert.Len(t, store.predictions, 1)
}

func TestKafkaCandlesHandlerPermanentErrors(t *testing.T) {
	p := newTestPredictor([]float64{0.05, 0.05, 0.9}, []float64{0.05, 0.05, 0.9})
	h := NewKafkaCandlesHandler("market.candles", p, nil, nil, nil)

	err := h.Handle(context.Background(), []byte("not json"))
	assert.True(t, pkgkafka.IsPermanent(err))

	err = h.Handle(context.Background(), candleEvent(t, 60, func(r *models.PredictRequest) { r.Symbol = "btcusdt" }))
	assert.True(t, pkgkafka.IsPermanent(err))

	err = h.Handle(context.Background(), candleEvent(t, 20, nil))
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrInvalidWindow)

	err = h.Handle(context.Background(), candleEvent(t, 60, func(r *models.PredictRequest) { r.Candles[5].High = 1 }))
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrInvalidCandle)
}

func TestKafkaCandlesHandlerStoresOnlyValidWindows(t *testing.T) {
	writer := &memCandles{}
	p := newTestPredictor([]float64{0.05, 0.05, 0.9}, []float64{0.05, 0.05, 0.9})
	h := NewKafkaCandlesHandler("market.candles", p, writer, nil, nil)

	tests := []struct {
		name   string
		n      int
		mutate func(*models.PredictRequest)
		is     error
	}{
		{"high below low", 60, func(r *models.PredictRequest) { r.Candles[5].High = 1 }, models.ErrInvalidCandle},
		{"duplicate timestamp", 60, func(r *models.PredictRequest) { r.Candles[5].Timestamp = r.Candles[4].Timestamp }, models.ErrInvalidWindow},
		{"too few candles", 20, nil, models.ErrInvalidWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), candleEvent(t, tt.n, tt.mutate))
			assert.True(t, pkgkafka.IsPermanent(err))
			assert.ErrorIs(t, err, tt.is)
		})
	}
	assert.Equal(t, 0, writer.saved)

	require.NoError(t, h.Handle(context.Background(), candleEvent(t, 60, nil)))
	assert.Equal(t, 60, writer.saved)
}
