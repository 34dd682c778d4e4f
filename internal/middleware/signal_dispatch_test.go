package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
)

type fakeSink struct {
	mu   sync.Mutex
	name string
	fail bool
	got  []string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, s *models.SignalPrediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.got = append(f.got, s.ID)
	return nil
}

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSink) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func signal(id, symbol string) *models.SignalPrediction {
	return &models.SignalPrediction{
		ID:        id,
		Exchange:  "binance",
		Symbol:    symbol,
		Timeframe: "1h",
		Levels:    models.Levels{Entry: 100, StopLoss: 98, TakeProfits: []float64{102}, RiskReward: 1},
	}
}

func TestDispatchValidates(t *testing.T) {
	d := NewSignalDispatcher(nil, nil)

	assert.Error(t, d.Dispatch(context.Background(), nil))
	assert.Error(t, d.Dispatch(context.Background(), signal("", "BTC/USDT")))
	assert.Error(t, d.Dispatch(context.Background(), signal("a", "")))

	bad := signal("a", "BTC/USDT")
	bad.Levels.TakeProfits = []float64{math.Inf(1)}
	assert.Error(t, d.Dispatch(context.Background(), bad))
}

func TestDispatchThrottlesPerMarket(t *testing.T) {
	sink := &fakeSink{name: "kafka"}
	d := NewSignalDispatcher(nil, nil, WithRate(0.001, 2))
	d.sinks = append(d.sinks, sink)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, signal("1", "BTC/USDT")))
	require.NoError(t, d.Dispatch(ctx, signal("2", "BTC/USDT")))
	assert.ErrorIs(t, d.Dispatch(ctx, signal("3", "BTC/USDT")), ErrThrottled)
	require.NoError(t, d.Dispatch(ctx, signal("4", "ETH/USDT")))

	assert.Equal(t, []string{"1", "2", "4"}, sink.ids())
}

func TestDispatchBuffersAndFlushes(t *testing.T) {
	kafka := &fakeSink{name: "kafka", fail: true}
	ws := &fakeSink{name: "websocket"}
	d := NewSignalDispatcher(nil, nil, WithRate(0, 0))
	d.sinks = append(d.sinks, kafka, ws)
	ctx := context.Background()

	err := d.Dispatch(ctx, signal("1", "BTC/USDT"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka")
	assert.Equal(t, 1, d.Buffered())
	assert.Equal(t, []string{"1"}, ws.ids())

	assert.Equal(t, 0, d.Flush(ctx))
	assert.Equal(t, 1, d.Buffered())

	kafka.setFail(false)
	require.NoError(t, d.Dispatch(ctx, signal("2", "BTC/USDT")))
	assert.Equal(t, 0, d.Buffered())
	assert.ElementsMatch(t, []string{"1", "2"}, kafka.ids())
}

func TestDispatchBufferIsBounded(t *testing.T) {
	sink := &fakeSink{name: "kafka", fail: true}
	d := NewSignalDispatcher(nil, nil, WithRate(0, 0), WithBufferSize(2))
	d.sinks = append(d.sinks, sink)

	for _, id := range []string{"1", "2", "3"} {
		_ = d.Dispatch(context.Background(), signal(id, "BTC/USDT"))
	}
	assert.Equal(t, 2, d.Buffered())

	sink.setFail(false)
	assert.Equal(t, 2, d.Flush(context.Background()))
	assert.Equal(t, []string{"2", "3"}, sink.ids())
}

func TestStartStop(t *testing.T) {
	d := NewSignalDispatcher(nil, nil)
	d.Start(context.Background())
	d.Start(context.Background())
	d.Stop()
	d.Stop()
}
