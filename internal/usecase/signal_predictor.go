package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
	"NeuralTrade/internal/services/inference"
	"NeuralTrade/internal/services/levels"
	"NeuralTrade/internal/services/risk"
	"NeuralTrade/pkg/logger"
)

// ErrNoCandleStore is returned by LatestPrediction when no candle store is configured.
var ErrNoCandleStore = errors.New("candle store not configured")

// Dispatcher forwards finished predictions to the outbound sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *models.SignalPrediction) error
}

// PredictCommand is one prediction request. A zero RequestTime means "now".
type PredictCommand struct {
	Meta        models.WindowMeta
	Candles     []models.Candle
	RequestTime time.Time
}

// SignalPredictor runs the full pipeline: window, dual inference, levels, risk.
type SignalPredictor struct {
	engine     *inference.Engine
	calculator *levels.Calculator
	assessor   *risk.Assessor
	bounds     models.WindowBounds

	cache      domrepo.PredictionCache
	store      domrepo.SignalStore
	candles    domrepo.CandleStore
	dispatcher Dispatcher

	metrics domrepo.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

type PredictorOption func(*SignalPredictor)

func WithPredictionCache(c domrepo.PredictionCache) PredictorOption {
	return func(p *SignalPredictor) { p.cache = c }
}

func WithSignalStore(s domrepo.SignalStore) PredictorOption {
	return func(p *SignalPredictor) { p.store = s }
}

func WithCandleStore(s domrepo.CandleStore) PredictorOption {
	return func(p *SignalPredictor) { p.candles = s }
}

func WithDispatcher(d Dispatcher) PredictorOption {
	return func(p *SignalPredictor) { p.dispatcher = d }
}

func WithPredictorMetrics(m domrepo.Metrics) PredictorOption {
	return func(p *SignalPredictor) { p.metrics = m }
}

func WithPredictorLogger(l *logger.Logger) PredictorOption {
	return func(p *SignalPredictor) { p.logger = l }
}

// WithPredictorClock overrides the wall clock.
func WithPredictorClock(now func() time.Time) PredictorOption {
	return func(p *SignalPredictor) { p.now = now }
}

func NewSignalPredictor(
	engine *inference.Engine,
	calculator *levels.Calculator,
	assessor *risk.Assessor,
	bounds models.WindowBounds,
	opts ...PredictorOption,
) *SignalPredictor {
	p := &SignalPredictor{
		engine:     engine,
		calculator: calculator,
		assessor:   assessor,
		bounds:     bounds,
		metrics:    domrepo.NopMetrics{},
		logger:     logger.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Window validates candles against the configured bounds without running the pipeline.
func (p *SignalPredictor) Window(meta models.WindowMeta, candles []models.Candle) (*models.CandleWindow, error) {
	w, err := models.NewCandleWindow(meta, candles, p.bounds)
	if err != nil {
		p.metrics.RecordError("predict_window")
		return nil, err
	}
	return w, nil
}

// Predict returns a complete signal or an error; nothing is cached, stored or
// published for a failed prediction.
func (p *SignalPredictor) Predict(ctx context.Context, cmd PredictCommand) (*models.SignalPrediction, error) {
	start := p.now()
	reqTime := cmd.RequestTime
	if reqTime.IsZero() {
		reqTime = start
	}

	w, err := p.Window(cmd.Meta, cmd.Candles)
	if err != nil {
		return nil, err
	}

	dual, err := p.engine.Predict(ctx, w)
	if err != nil {
		p.metrics.RecordError("predict_inference")
		return nil, fmt.Errorf("inference: %w", err)
	}
	primary := dual.Primary

	lv, err := p.calculator.Calculate(primary.Direction, w)
	if err != nil {
		p.metrics.RecordError("predict_levels")
		return nil, fmt.Errorf("levels: %w", err)
	}

	assessment := p.assessor.Assess(risk.AssessInput{
		Window:       w,
		RequestTime:  reqTime,
		Direction:    primary.Direction,
		Confidence:   primary.Confidence,
		ShadowAgreed: dual.ShadowAgreed,
	})

	meta := w.Meta()
	pred := &models.SignalPrediction{
		ID:               uuid.NewString(),
		Exchange:         meta.Exchange,
		Symbol:           meta.Symbol,
		Timeframe:        meta.Timeframe,
		Direction:        primary.Direction,
		Confidence:       primary.Confidence,
		Probabilities:    primary.Probabilities,
		Levels:           lv,
		Risk:             assessment,
		ModelVersion:     p.modelVersion(),
		Fallback:         primary.Fallback,
		RequestTimestamp: reqTime.UnixMilli(),
		Timestamp:        p.now().UTC(),
	}
	elapsed := p.now().Sub(start)
	pred.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000

	p.metrics.RecordPrediction(pred.Direction, assessment.Level, assessment.Score)
	p.metrics.RecordDrift(assessment.DriftDetected)
	p.metrics.RecordLatency("predict", elapsed.Seconds())

	p.logger.Info("signal predicted",
		logger.String("id", pred.ID),
		logger.String("market", meta.Key()),
		logger.String("direction", string(pred.Direction)),
		logger.Float64("confidence", pred.Confidence),
		logger.String("risk_level", string(assessment.Level)),
		logger.Float64("rpn", assessment.Score),
		logger.Bool("shadow_agreed", dual.ShadowAgreed),
		logger.Bool("fallback", pred.Fallback),
	)

	p.publish(ctx, pred)
	return pred, nil
}

// publish runs the side effects. They are best-effort: failures are logged and counted only.
func (p *SignalPredictor) publish(ctx context.Context, pred *models.SignalPrediction) {
	if p.cache != nil {
		if err := p.cache.Put(ctx, pred); err != nil {
			p.metrics.RecordError("cache_put")
			p.logger.Warn("cache prediction failed", logger.String("id", pred.ID), logger.Error(err))
		}
	}
	if p.store != nil {
		if err := p.store.SavePrediction(ctx, pred); err != nil {
			p.metrics.RecordError("store_prediction")
			p.logger.Warn("store prediction failed", logger.String("id", pred.ID), logger.Error(err))
		}
	}
	if p.dispatcher != nil {
		if err := p.dispatcher.Dispatch(ctx, pred); err != nil {
			p.logger.Warn("dispatch prediction failed", logger.String("id", pred.ID), logger.Error(err))
		}
	}
}

// LatestPrediction predicts from the newest n stored candles of a market.
func (p *SignalPredictor) LatestPrediction(ctx context.Context, meta models.WindowMeta, n int) (*models.SignalPrediction, error) {
	if p.candles == nil {
		return nil, ErrNoCandleStore
	}
	candles, err := p.candles.GetLatestNCandles(ctx, meta, n)
	if err != nil {
		p.metrics.RecordError("candle_store")
		return nil, fmt.Errorf("load candles: %w", err)
	}
	return p.Predict(ctx, PredictCommand{Meta: meta, Candles: candles})
}

// Lookup returns a cached prediction by ID.
func (p *SignalPredictor) Lookup(ctx context.Context, id string) (*models.SignalPrediction, bool, error) {
	if p.cache == nil {
		return nil, false, nil
	}
	return p.cache.Get(ctx, id)
}

// Models describes the primary and shadow classifiers.
func (p *SignalPredictor) Models() []models.ModelInfo {
	return p.engine.Models()
}

// ModelLoaded reports whether the primary classifier is a real model.
func (p *SignalPredictor) ModelLoaded() bool {
	return p.engine.Loaded()
}

func (p *SignalPredictor) modelVersion() string {
	for _, m := range p.engine.Models() {
		if m.Role == inference.RolePrimary {
			return m.Version
		}
	}
	return ""
}

// RequestTime converts an optional client timestamp in unix milliseconds.
// Absent yields the zero time, which Predict replaces with receipt time; an explicit 0 is the epoch.
func RequestTime(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}
