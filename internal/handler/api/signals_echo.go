package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/service/metrics"
	"NeuralTrade/internal/service/ratelimit"
	"NeuralTrade/internal/usecase"
	xhttp "NeuralTrade/pkg/http"
	xlogger "NeuralTrade/pkg/logger"
)

// Pinger reports whether a backing connection (the outcome queue) is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StreamServer upgrades a request to a signal stream connection.
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

type HealthResponse struct {
	Status         string  `json:"status"`
	Version        string  `json:"version"`
	ModelLoaded    bool    `json:"model_loaded"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	QueueConnected bool    `json:"queue_connected"`
}

type FeedbackResponse struct {
	Recorded bool `json:"recorded"`
}

// SignalsEchoHandler serves the signal API on echo.
type SignalsEchoHandler struct {
	logger    *xlogger.Logger
	predictor *usecase.SignalPredictor
	recorder  *usecase.OutcomeRecorder
	limiter   *ratelimit.Limiter
	stream    StreamServer
	queue     Pinger
	version   string
	started   time.Time
}

type HandlerOption func(*SignalsEchoHandler)

// WithLimiter rate limits POST /api/predict per client IP.
func WithLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *SignalsEchoHandler) { h.limiter = l }
}

func WithStream(s StreamServer) HandlerOption {
	return func(h *SignalsEchoHandler) { h.stream = s }
}

func WithQueue(q Pinger) HandlerOption {
	return func(h *SignalsEchoHandler) { h.queue = q }
}

func WithVersion(v string) HandlerOption {
	return func(h *SignalsEchoHandler) { h.version = v }
}

func NewSignalsEchoHandler(logger *xlogger.Logger, predictor *usecase.SignalPredictor, recorder *usecase.OutcomeRecorder, opts ...HandlerOption) *SignalsEchoHandler {
	metrics.Register()
	h := &SignalsEchoHandler{
		logger:    logger,
		predictor: predictor,
		recorder:  recorder,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/ws/signals", h.Stream)

	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.GET("/predict/latest", h.Latest)
	g.GET("/signals/:id", h.Signal)
	g.POST("/feedback", h.Feedback)
	g.GET("/models", h.Models)
}

func (h *SignalsEchoHandler) Predict(c echo.Context) error {
	const endpoint = "predict"
	defer observe(endpoint, time.Now())

	if h.limiter != nil && !h.limiter.Allow(xhttp.ClientKey(c)) {
		metrics.RateLimited.WithLabelValues(endpoint).Inc()
		h.logger.Warn("predict rate limited", xlogger.String("client", xhttp.ClientKey(c)))
		return h.fail(c, endpoint, xhttp.TooManyRequestsError("rate limit exceeded, retry later"))
	}

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, xhttp.CodeValidation).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	pred, err := h.predictor.Predict(c.Request().Context(), usecase.PredictCommand{
		Meta:        req.Meta(),
		Candles:     req.ToCandles(),
		RequestTime: usecase.RequestTime(req.RequestTimestamp),
	})
	if err != nil {
		return h.fail(c, endpoint, mapPredictError(err))
	}
	return xhttp.SuccessResponse(c, pred)
}

func (h *SignalsEchoHandler) Latest(c echo.Context) error {
	const endpoint = "predict_latest"
	defer observe(endpoint, time.Now())

	req := &models.LatestPredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, xhttp.CodeValidation).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	meta := models.WindowMeta{Exchange: req.Exchange, Symbol: req.Symbol, Timeframe: req.Timeframe}
	pred, err := h.predictor.LatestPrediction(c.Request().Context(), meta, req.Limit)
	if err != nil {
		return h.fail(c, endpoint, mapPredictError(err))
	}
	return xhttp.SuccessResponse(c, pred)
}

func (h *SignalsEchoHandler) Signal(c echo.Context) error {
	const endpoint = "signal"
	defer observe(endpoint, time.Now())

	req := &models.SignalLookupRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pred, ok, err := h.predictor.Lookup(c.Request().Context(), req.ID)
	if err != nil {
		h.logger.Error("signal lookup failed", xlogger.String("id", req.ID), xlogger.Error(err))
		return h.fail(c, endpoint, xhttp.ServiceUnavailableError("prediction cache unavailable").WithError(err))
	}
	if !ok {
		return h.fail(c, endpoint, xhttp.NotFoundErrorf("prediction %s not found", req.ID))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, pred)
}

func (h *SignalsEchoHandler) Feedback(c echo.Context) error {
	const endpoint = "feedback"
	defer observe(endpoint, time.Now())

	req := &models.FeedbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint, xhttp.CodeValidation).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.recorder.Record(c.Request().Context(), req.PredictionID, *req.WasCorrect); err != nil {
		return h.fail(c, endpoint, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, FeedbackResponse{Recorded: true})
}

func (h *SignalsEchoHandler) Models(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.predictor.Models())
}

func (h *SignalsEchoHandler) Health(c echo.Context) error {
	queueOK := false
	if h.queue != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
		queueOK = h.queue.Ping(ctx) == nil
		cancel()
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		ModelLoaded:    h.predictor.ModelLoaded(),
		UptimeSeconds:  time.Since(h.started).Seconds(),
		QueueConnected: queueOK,
	})
}

func (h *SignalsEchoHandler) Stream(c echo.Context) error {
	if h.stream == nil {
		return h.fail(c, "stream", xhttp.ServiceUnavailableError("signal stream disabled"))
	}
	if err := h.stream.ServeWS(c.Response(), c.Request()); err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.String("remote", c.RealIP()), xlogger.Error(err))
		return nil // upgrader already wrote the response
	}
	return nil
}

func (h *SignalsEchoHandler) fail(c echo.Context, endpoint string, appErr *xhttp.AppError) error {
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			xlogger.String("endpoint", endpoint),
			xlogger.String("code", appErr.Code),
			xlogger.Error(appErr),
		)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// mapPredictError translates pipeline failures to API errors.
func mapPredictError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrInvalidCandle):
		return xhttp.ValidationFailed("candles", err)
	case errors.Is(err, models.ErrInvalidWindow):
		return xhttp.InvalidWindowError(err)
	case errors.Is(err, models.ErrInvalidProbabilities):
		return xhttp.InferenceError(err)
	case errors.Is(err, usecase.ErrNoCandleStore):
		return xhttp.ServiceUnavailableError("candle store not configured").WithError(err)
	default:
		return xhttp.InternalError("prediction failed").WithError(err)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
