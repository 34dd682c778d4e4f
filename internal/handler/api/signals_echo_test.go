package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NeuralTrade/internal/domain/models"
	domsvc "NeuralTrade/internal/domain/service"
	"NeuralTrade/internal/service/cache"
	"NeuralTrade/internal/service/ratelimit"
	"NeuralTrade/internal/services/inference"
	"NeuralTrade/internal/services/levels"
	"NeuralTrade/internal/services/risk"
	"NeuralTrade/internal/usecase"
	xlogger "NeuralTrade/pkg/logger"
)

type fixedClassifier struct {
	role  string
	probs []float64
}

func (f fixedClassifier) Infer(context.Context, domsvc.FeatureMatrix) (models.ProbabilityVector, error) {
	return models.ProbabilityVectorFromSlice(f.probs)
}

func (f fixedClassifier) Info() models.ModelInfo {
	return models.ModelInfo{Role: f.role, Name: "lstm", Version: "1.0.0", Loaded: true}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

func newTestServer(t *testing.T, opts ...HandlerOption) *echo.Echo {
	t.Helper()
	engine := inference.NewEngine(
		fixedClassifier{role: inference.RolePrimary, probs: []float64{0.05, 0.05, 0.9}},
		fixedClassifier{role: inference.RoleShadow, probs: []float64{0.1, 0.1, 0.8}},
	)
	assessor := risk.NewAssessor(risk.DefaultConfig())
	predictor := usecase.NewSignalPredictor(engine, levels.NewCalculator(0), assessor, models.DefaultWindowBounds(),
		usecase.WithPredictionCache(cache.NewPredictionCache(nil, 0, "test", nil)))
	recorder := usecase.NewOutcomeRecorder(assessor, nil, nil, nil)

	e := echo.New()
	NewSignalsEchoHandler(xlogger.NewNop(), predictor, recorder, opts...).RegisterRoutes(e)
	return e
}

func predictBody(symbol string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"exchange":"binance","symbol":%q,"timeframe":"1h","candles":[`, symbol)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		p := 100 + i%3
		fmt.Fprintf(&b, `{"timestamp":%d,"open":%d,"high":%d,"low":%d,"close":%d,"volume":10}`,
			1_700_000_000_000+i*60_000, p, p+1, p-1, p)
	}
	b.WriteString(`]}`)
	return b.String()
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestPredictAndLookup(t *testing.T) {
	e := newTestServer(t)

	rec, env := do(e, http.MethodPost, "/api/predict", predictBody("BTC/USDT", 60))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pred models.SignalPrediction
	require.NoError(t, json.Unmarshal(env.Data, &pred))
	assert.Equal(t, models.DirectionLong, pred.Direction)
	assert.Equal(t, "BTC/USDT", pred.Symbol)
	assert.Equal(t, "1.0.0", pred.ModelVersion)
	assert.Len(t, pred.Levels.TakeProfits, 3)

	rec, env = do(e, http.MethodGet, "/api/signals/"+pred.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.SignalPrediction
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, pred.ID, got.ID)

	rec, _ = do(e, http.MethodGet, "/api/signals/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredictErrors(t *testing.T) {
	e := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad symbol", predictBody("btc-usdt", 60), http.StatusBadRequest, "ERR_PAIR"},
		{"window too short", predictBody("BTC/USDT", 10), http.StatusBadRequest, "ERR_INVALID_WINDOW"},
		{"no candles", `{"exchange":"binance","symbol":"BTC/USDT"}`, http.StatusBadRequest, "ERR_REQUIRED"},
		{"unknown exchange", strings.Replace(predictBody("BTC/USDT", 60), "binance", "mtgox", 1), http.StatusBadRequest, "ERR_ONEOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(e, http.MethodPost, "/api/predict", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var errs []struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(env.Errors, &errs))
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, errs[0].Code)
		})
	}
}

func TestPredictRateLimited(t *testing.T) {
	e := newTestServer(t, WithLimiter(ratelimit.New(1, 0)))

	rec, _ := do(e, http.MethodPost, "/api/predict", predictBody("BTC/USDT", 60))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(e, http.MethodPost, "/api/predict", predictBody("BTC/USDT", 60))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLatestWithoutCandleStore(t *testing.T) {
	e := newTestServer(t)

	rec, _ := do(e, http.MethodGet, "/api/predict/latest?exchange=binance&symbol=BTC/USDT", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/predict/latest?exchange=binance&symbol=BTC/USDT&limit=9999", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedback(t *testing.T) {
	e := newTestServer(t)

	rec, env := do(e, http.MethodPost, "/api/feedback", `{"prediction_id":"abc","was_correct":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recorded":true}`, string(env.Data))

	rec, _ = do(e, http.MethodPost, "/api/feedback", `{"prediction_id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndModels(t *testing.T) {
	e := newTestServer(t, WithVersion("0.1.0"), WithQueue(pingerFunc(func(context.Context) error { return nil })))

	rec, _ := do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "0.1.0", health.Version)
	assert.True(t, health.ModelLoaded)
	assert.True(t, health.QueueConnected)

	rec, env := do(e, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []models.ModelInfo
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, inference.RolePrimary, infos[0].Role)
}

func TestStreamDisabled(t *testing.T) {
	e := newTestServer(t)
	rec, _ := do(e, http.MethodGet, "/ws/signals", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
