package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
	domsvc "NeuralTrade/internal/domain/service"
	"NeuralTrade/internal/services/features"
	"NeuralTrade/pkg/logger"
)

const (
	RolePrimary = "primary"
	RoleShadow  = "shadow"
)

// Engine runs the primary and shadow classifiers on the same normalized window.
type Engine struct {
	primary  domsvc.Classifier
	shadow   domsvc.Classifier
	timeout  time.Duration
	parallel bool
	logger   *logger.Logger
	metrics  domrepo.Metrics
}

type EngineOption func(*Engine)

// WithTimeout bounds each classifier call. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithParallel runs primary and shadow concurrently.
func WithParallel(parallel bool) EngineOption {
	return func(e *Engine) { e.parallel = parallel }
}

func WithLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m domrepo.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(primary, shadow domsvc.Classifier, opts ...EngineOption) *Engine {
	e := &Engine{
		primary: primary,
		shadow:  shadow,
		logger:  logger.NewNop(),
		metrics: domrepo.NopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict returns the primary direction and confidence plus whether the shadow agrees.
// An unavailable classifier degrades to the fallback vector; only an invalid
// probability vector fails the call.
func (e *Engine) Predict(ctx context.Context, w *models.CandleWindow) (models.DualInference, error) {
	fm := features.Normalize(w)

	type item struct {
		role string
		res  models.InferenceResult
		err  error
	}

	results := make(map[string]item, 2)
	if e.parallel {
		ch := make(chan item, 2)
		var wg sync.WaitGroup
		for role, c := range map[string]domsvc.Classifier{RolePrimary: e.primary, RoleShadow: e.shadow} {
			wg.Add(1)
			go func(role string, c domsvc.Classifier) {
				defer wg.Done()
				res, err := e.infer(ctx, role, c, fm)
				ch <- item{role, res, err}
			}(role, c)
		}
		wg.Wait()
		close(ch)
		for it := range ch {
			results[it.role] = it
		}
	} else {
		for _, role := range []string{RolePrimary, RoleShadow} {
			c := e.primary
			if role == RoleShadow {
				c = e.shadow
			}
			res, err := e.infer(ctx, role, c, fm)
			results[role] = item{role, res, err}
		}
	}

	primary, shadow := results[RolePrimary], results[RoleShadow]
	if primary.err != nil {
		return models.DualInference{}, fmt.Errorf("primary inference: %w", primary.err)
	}
	if shadow.err != nil {
		return models.DualInference{}, fmt.Errorf("shadow inference: %w", shadow.err)
	}

	agreed := primary.res.Direction == shadow.res.Direction
	e.metrics.RecordShadowAgreement(agreed)
	e.logger.Debug("dual inference",
		logger.String("window", w.Meta().Key()),
		logger.String("primary_direction", string(primary.res.Direction)),
		logger.Float64("primary_confidence", primary.res.Confidence),
		logger.String("shadow_direction", string(shadow.res.Direction)),
		logger.Float64("shadow_confidence", shadow.res.Confidence),
		logger.Bool("shadow_agreed", agreed),
	)

	return models.DualInference{
		Primary:      primary.res,
		Shadow:       shadow.res,
		ShadowAgreed: agreed,
	}, nil
}

func (e *Engine) infer(ctx context.Context, role string, c domsvc.Classifier, fm domsvc.FeatureMatrix) (models.InferenceResult, error) {
	info := c.Info()
	start := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	p, err := safeInfer(ctx, c, fm)
	e.metrics.RecordInferenceLatency(role, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, models.ErrInvalidProbabilities) {
			e.metrics.RecordError("inference_invalid_output")
			return models.InferenceResult{}, err
		}
		e.logger.Warn("classifier unavailable, using fallback vector",
			logger.String("role", role),
			logger.String("model", info.Name),
			logger.Error(err),
		)
		e.metrics.RecordInferenceFallback(role)
		return models.NewInferenceResult(info.Name, models.FallbackProbabilities, true), nil
	}
	return models.NewInferenceResult(info.Name, p, !info.Loaded), nil
}

// safeInfer turns a classifier panic into an error so it degrades like any other failure.
func safeInfer(ctx context.Context, c domsvc.Classifier, fm domsvc.FeatureMatrix) (p models.ProbabilityVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return c.Infer(ctx, fm)
}

// Models describes the bound primary and shadow classifiers.
func (e *Engine) Models() []models.ModelInfo {
	return []models.ModelInfo{e.primary.Info(), e.shadow.Info()}
}

// Loaded reports whether the primary classifier is backed by a real model.
func (e *Engine) Loaded() bool {
	return e.primary.Info().Loaded
}
