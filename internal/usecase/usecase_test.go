package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
	domsvc "NeuralTrade/internal/domain/service"
	"NeuralTrade/internal/services/inference"
	"NeuralTrade/internal/services/levels"
	"NeuralTrade/internal/services/risk"
)

type stubClassifier struct {
	role  string
	probs []float64
	err   error
}

func (s *stubClassifier) Infer(context.Context, domsvc.FeatureMatrix) (models.ProbabilityVector, error) {
	if s.err != nil {
		return models.ProbabilityVector{}, s.err
	}
	return models.ProbabilityVectorFromSlice(s.probs)
}

func (s *stubClassifier) Info() models.ModelInfo {
	return models.ModelInfo{Role: s.role, Name: "lstm-" + s.role, Version: "v1-" + s.role, Loaded: true}
}

type memCache struct {
	mu    sync.Mutex
	items map[string]*models.SignalPrediction
	err   error
}

func (m *memCache) Put(_ context.Context, s *models.SignalPrediction) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]*models.SignalPrediction{}
	}
	m.items[s.ID] = s
	return nil
}

func (m *memCache) Get(_ context.Context, id string) (*models.SignalPrediction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	return s, ok, nil
}

type memStore struct {
	mu          sync.Mutex
	predictions []*models.SignalPrediction
	outcomes    []models.Outcome
	err         error
}

func (m *memStore) Init(context.Context) error { return nil }
func (m *memStore) SavePrediction(_ context.Context, s *models.SignalPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = append(m.predictions, s)
	return m.err
}
func (m *memStore) SaveOutcome(_ context.Context, o models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return m.err
}
func (m *memStore) Health(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

type memCandles struct {
	candles []models.Candle
	saved   int
	err     error
}

func (m *memCandles) GetLatestNCandles(_ context.Context, _ models.WindowMeta, n int) ([]models.Candle, error) {
	if m.err != nil {
		return nil, m.err
	}
	if n > len(m.candles) {
		n = len(m.candles)
	}
	return m.candles[len(m.candles)-n:], nil
}

func (m *memCandles) SaveCandles(_ context.Context, _ models.WindowMeta, candles []models.Candle) error {
	m.saved += len(candles)
	return m.err
}

type recordingDispatcher struct {
	got []*models.SignalPrediction
}

func (d *recordingDispatcher) Dispatch(_ context.Context, s *models.SignalPrediction) error {
	d.got = append(d.got, s)
	return nil
}

var testMeta = models.WindowMeta{Exchange: "binance", Symbol: "BTC/USDT", Timeframe: "1h"}

func steadyCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		p := 100 + float64(i%3)
		out[i] = models.Candle{Timestamp: int64(1_700_000_000_000 + i*3_600_000), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

func newTestPredictor(primary, shadow []float64, opts ...PredictorOption) *SignalPredictor {
	engine := inference.NewEngine(
		&stubClassifier{role: inference.RolePrimary, probs: primary},
		&stubClassifier{role: inference.RoleShadow, probs: shadow},
	)
	assessor := risk.NewAssessor(risk.DefaultConfig())
	return NewSignalPredictor(engine, levels.NewCalculator(levels.DefaultATRPeriod), assessor, models.DefaultWindowBounds(), opts...)
}

func TestPredictLong(t *testing.T) {
	cache := &memCache{}
	store := &memStore{}
	disp := &recordingDispatcher{}
	p := newTestPredictor([]float64{0.05, 0.05, 0.9}, []float64{0.1, 0.1, 0.8},
		WithPredictionCache(cache), WithSignalStore(store), WithDispatcher(disp))

	pred, err := p.Predict(context.Background(), PredictCommand{Meta: testMeta, Candles: steadyCandles(60)})
	require.NoError(t, err)

	assert.NotEmpty(t, pred.ID)
	assert.Equal(t, models.DirectionLong, pred.Direction)
	assert.InDelta(t, 0.9, pred.Confidence, 1e-9)
	assert.Equal(t, "v1-primary", pred.ModelVersion)
	assert.False(t, pred.Fallback)
	assert.Less(t, pred.Levels.StopLoss, pred.Levels.Entry)
	require.Len(t, pred.Levels.TakeProfits, 3)
	assert.True(t, pred.Risk.ShadowAgreed)
	assert.Equal(t, models.RiskLow, pred.Risk.Level)

	got, ok, err := p.Lookup(context.Background(), pred.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pred.ID, got.ID)
	assert.Len(t, store.predictions, 1)
	assert.Len(t, disp.got, 1)
}

func TestPredictRejectsShortWindow(t *testing.T) {
	store := &memStore{}
	p := newTestPredictor([]float64{0.1, 0.1, 0.8}, []float64{0.1, 0.1, 0.8}, WithSignalStore(store))

	_, err := p.Predict(context.Background(), PredictCommand{Meta: testMeta, Candles: steadyCandles(10)})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
	assert.Empty(t, store.predictions)
}

func TestPredictInvalidProbabilities(t *testing.T) {
	engine := inference.NewEngine(
		&stubClassifier{role: inference.RolePrimary, err: models.ErrInvalidProbabilities},
		&stubClassifier{role: inference.RoleShadow, probs: []float64{0.2, 0.6, 0.2}},
	)
	p := NewSignalPredictor(engine, levels.NewCalculator(0), risk.NewAssessor(risk.DefaultConfig()), models.DefaultWindowBounds())

	_, err := p.Predict(context.Background(), PredictCommand{Meta: testMeta, Candles: steadyCandles(60)})
	assert.ErrorIs(t, err, models.ErrInvalidProbabilities)
}

func TestPredictSideEffectsAreBestEffort(t *testing.T) {
	p := newTestPredictor([]float64{0.8, 0.1, 0.1}, []float64{0.1, 0.1, 0.8},
		WithPredictionCache(&memCache{err: errors.New("redis down")}),
		WithSignalStore(&memStore{err: errors.New("clickhouse down")}))

	pred, err := p.Predict(context.Background(), PredictCommand{Meta: testMeta, Candles: steadyCandles(60)})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionShort, pred.Direction)
	assert.False(t, pred.Risk.ShadowAgreed)
}

func TestPredictStaleRequest(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	engine := inference.NewEngine(
		&stubClassifier{role: inference.RolePrimary, probs: []float64{0.05, 0.05, 0.9}},
		&stubClassifier{role: inference.RoleShadow, probs: []float64{0.05, 0.05, 0.9}},
	)
	assessor := risk.NewAssessor(risk.DefaultConfig(), risk.WithClock(func() time.Time { return now }))
	p := NewSignalPredictor(engine, levels.NewCalculator(0), assessor, models.DefaultWindowBounds(),
		WithPredictorClock(func() time.Time { return now }))

	pred, err := p.Predict(context.Background(), PredictCommand{
		Meta:        testMeta,
		Candles:     steadyCandles(60),
		RequestTime: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, pred.Risk.StaleData)
	assert.Equal(t, now.Add(-time.Minute).UnixMilli(), pred.RequestTimestamp)
}

func TestLatestPrediction(t *testing.T) {
	p := newTestPredictor([]float64{0.1, 0.8, 0.1}, []float64{0.1, 0.8, 0.1})
	_, err := p.LatestPrediction(context.Background(), testMeta, 100)
	assert.ErrorIs(t, err, ErrNoCandleStore)

	p = newTestPredictor([]float64{0.1, 0.8, 0.1}, []float64{0.1, 0.8, 0.1},
		WithCandleStore(&memCandles{candles: steadyCandles(120)}))
	pred, err := p.LatestPrediction(context.Background(), testMeta, 100)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNeutral, pred.Direction)
	assert.False(t, pred.Risk.StaleData)

	p = newTestPredictor([]float64{0.1, 0.8, 0.1}, []float64{0.1, 0.8, 0.1},
		WithCandleStore(&memCandles{err: errors.New("timeout")}))
	_, err = p.LatestPrediction(context.Background(), testMeta, 100)
	assert.Error(t, err)
}

func TestRequestTime(t *testing.T) {
	assert.True(t, RequestTime(nil).IsZero())

	zero := int64(0)
	assert.False(t, RequestTime(&zero).IsZero())
	assert.Equal(t, int64(0), RequestTime(&zero).UnixMilli())

	ms := int64(1_700_000_000_123)
	assert.Equal(t, ms, RequestTime(&ms).UnixMilli())
}

func TestPredictExplicitZeroRequestTimeIsStale(t *testing.T) {
	p := newTestPredictor([]float64{0.05, 0.05, 0.9}, []float64{0.05, 0.05, 0.9})
	zero := int64(0)

	pred, err := p.Predict(context.Background(), PredictCommand{
		Meta:        testMeta,
		Candles:     steadyCandles(60),
		RequestTime: RequestTime(&zero),
	})
	require.NoError(t, err)
	assert.True(t, pred.Risk.StaleData)
	assert.Equal(t, int64(0), pred.RequestTimestamp)

	pred, err = p.Predict(context.Background(), PredictCommand{Meta: testMeta, Candles: steadyCandles(60), RequestTime: RequestTime(nil)})
	require.NoError(t, err)
	assert.False(t, pred.Risk.StaleData)
}

func TestOutcomeRecorder(t *testing.T) {
	assessor := risk.NewAssessor(risk.DefaultConfig())
	store := &memStore{}
	r := NewOutcomeRecorder(assessor, store, nil, nil)

	assert.ErrorIs(t, r.Record(context.Background(), "", true), ErrMissingPredictionID)

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Record(context.Background(), "p-1", false))
	}
	assert.True(t, assessor.DriftDetected())
	assert.Len(t, store.outcomes, 10)
	assert.Equal(t, "p-1", store.outcomes[0].PredictionID)
}

func TestOutcomeJob(t *testing.T) {
	assessor := risk.NewAssessor(risk.DefaultConfig())
	job := NewOutcomeJob(NewOutcomeRecorder(assessor, nil, nil, nil))

	assert.Equal(t, OutcomeMessageType, job.Type())
	require.NoError(t, job.Handle(context.Background(), []byte(`{"prediction_id":"abc","was_correct":true}`)))
	assert.Equal(t, 1, assessor.History().Len())

	assert.Error(t, job.Handle(context.Background(), []byte(`{`)))
}
