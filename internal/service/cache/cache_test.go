package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
)

type memShared struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (m *memShared) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memShared) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func samplePrediction(id string) *models.SignalPrediction {
	return &models.SignalPrediction{
		ID:            id,
		Exchange:      "binance",
		Symbol:        "BTC/USDT",
		Timeframe:     "1h",
		Direction:     models.DirectionNeutral,
		Confidence:    0.34,
		Probabilities: models.FallbackProbabilities,
		Levels:        models.Levels{Entry: 100, StopLoss: 98, TakeProfits: []float64{102}, RiskReward: 1},
		Risk:          models.RiskAssessment{Level: models.RiskLow, Score: 36},
	}
}

func TestPredictionCacheLocalOnly(t *testing.T) {
	c := NewPredictionCache(nil, time.Minute, "nt", nil)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, samplePrediction("a")))
	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", got.Symbol)
	assert.Equal(t, models.DirectionNeutral, got.Direction)
	assert.InDelta(t, 0.34, got.Probabilities.Hold(), 1e-9)
}

func TestPredictionCacheReadsThroughShared(t *testing.T) {
	shared := &memShared{data: map[string][]byte{}}
	writer := NewPredictionCache(shared, time.Minute, "nt", nil)
	reader := NewPredictionCache(shared, time.Minute, "nt", nil)
	ctx := context.Background()

	require.NoError(t, writer.Put(ctx, samplePrediction("b")))
	assert.Contains(t, shared.data, "nt:signal:b")

	got, ok, err := reader.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, 1, reader.local.Len())
}

func TestPredictionCacheSharedError(t *testing.T) {
	shared := &memShared{data: map[string][]byte{}, err: errors.New("redis down")}
	c := NewPredictionCache(shared, time.Minute, "nt", nil)

	assert.Error(t, c.Put(context.Background(), samplePrediction("c")))
	// local layer was still written
	_, ok, err := c.Get(context.Background(), "c")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = c.Get(context.Background(), "other")
	assert.Error(t, err)
}

func TestTTLCacheExpiryAndEviction(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewTTLCache(2)
	c.now = func() time.Time { return now }

	c.Set("a", []byte("1"), time.Second)
	c.Set("b", []byte("2"), 0)
	now = now.Add(2 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []byte("1"), time.Second)
	c.Set("c", []byte("3"), 0)
	assert.Equal(t, 2, c.Len())
}
