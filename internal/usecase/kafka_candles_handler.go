package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
	xhttp "NeuralTrade/pkg/http"
	pkgkafka "NeuralTrade/pkg/kafka"
	"NeuralTrade/pkg/logger"
)

// KafkaCandlesHandler turns candle-window events into predictions.
// Only undecodable or invalid events fail (and go to the DLQ); pipeline
// problems are logged so one bad model call does not stall the partition.
type KafkaCandlesHandler struct {
	topic     string
	predictor *SignalPredictor
	writer    domrepo.CandleWriter
	metrics   domrepo.Metrics
	logger    *logger.Logger
}

func NewKafkaCandlesHandler(topic string, predictor *SignalPredictor, writer domrepo.CandleWriter, metrics domrepo.Metrics, l *logger.Logger) *KafkaCandlesHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &KafkaCandlesHandler{topic: topic, predictor: predictor, writer: writer, metrics: metrics, logger: l}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// incoming message schema: same as POST /api/predict
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var req models.PredictRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode candle event: %w", err))
	}
	if verrs := xhttp.ValidateStruct(&req); verrs != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("invalid candle event: %s: %s", verrs[0].Field, verrs[0].Message))
	}

	meta := req.Meta()
	candles := req.ToCandles()
	if last := candles[len(candles)-1].Timestamp; last > 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.UnixMilli(last)).Seconds())
	}

	// reject before anything is stored
	if _, err := h.predictor.Window(meta, candles); err != nil {
		return pkgkafka.Permanent(err)
	}

	if h.writer != nil {
		start := time.Now()
		if err := h.writer.SaveCandles(ctx, meta, candles); err != nil {
			h.metrics.RecordError("consumer_store")
			h.logger.Warn("store streamed candles failed", logger.String("market", meta.Key()), logger.Error(err))
		}
		h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	}

	pred, err := h.predictor.Predict(ctx, PredictCommand{
		Meta:        meta,
		Candles:     candles,
		RequestTime: RequestTime(req.RequestTimestamp),
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidCandle) || errors.Is(err, models.ErrInvalidWindow) {
			return pkgkafka.Permanent(err)
		}
		h.logger.Error("predict from stream failed", logger.String("market", meta.Key()), logger.Error(err))
		return nil
	}

	if trace := pkgkafka.TraceID(ctx); trace != "" {
		h.logger.Debug("streamed prediction", logger.String("id", pred.ID), logger.String("trace_id", trace))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
