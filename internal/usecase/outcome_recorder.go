package usecase

import (
	"context"
	"errors"
	"time"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
	"NeuralTrade/internal/services/risk"
	"NeuralTrade/pkg/logger"
	"NeuralTrade/pkg/queue"
)

// OutcomeMessageType is the queue message type for asynchronous outcome reports.
const OutcomeMessageType = "signal.outcome"

var ErrMissingPredictionID = errors.New("prediction id is required")

// OutcomeRecorder feeds realized outcomes back into drift detection.
type OutcomeRecorder struct {
	assessor *risk.Assessor
	store    domrepo.SignalStore
	metrics  domrepo.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewOutcomeRecorder(assessor *risk.Assessor, store domrepo.SignalStore, metrics domrepo.Metrics, l *logger.Logger) *OutcomeRecorder {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &OutcomeRecorder{assessor: assessor, store: store, metrics: metrics, logger: l, now: time.Now}
}

// Record appends the outcome to the history. Persisting it is best-effort.
func (r *OutcomeRecorder) Record(ctx context.Context, predictionID string, wasCorrect bool) error {
	if predictionID == "" {
		return ErrMissingPredictionID
	}

	r.assessor.RecordOutcome(wasCorrect)
	drift := r.assessor.DriftDetected()
	r.metrics.RecordOutcome(wasCorrect)
	r.metrics.RecordDrift(drift)

	if r.store != nil {
		o := models.Outcome{PredictionID: predictionID, WasCorrect: wasCorrect, RecordedAt: r.now().UTC()}
		if err := r.store.SaveOutcome(ctx, o); err != nil {
			r.metrics.RecordError("store_outcome")
			r.logger.Warn("store outcome failed", logger.String("prediction_id", predictionID), logger.Error(err))
		}
	}

	if drift {
		r.logger.Warn("model drift detected",
			logger.String("prediction_id", predictionID),
			logger.Int("history_size", r.assessor.History().Len()),
		)
	}
	return nil
}

// OutcomeJob consumes queued outcome reports.
type OutcomeJob struct {
	recorder *OutcomeRecorder
}

func NewOutcomeJob(recorder *OutcomeRecorder) *OutcomeJob {
	return &OutcomeJob{recorder: recorder}
}

func (j *OutcomeJob) Name() string { return "outcome-recorder" }
func (j *OutcomeJob) Type() string { return OutcomeMessageType }

func (j *OutcomeJob) Handle(ctx context.Context, payload []byte) error {
	o, err := queue.ParsePayload[models.Outcome](payload)
	if err != nil {
		return err
	}
	return j.recorder.Record(ctx, o.PredictionID, o.WasCorrect)
}

var _ queue.Job = (*OutcomeJob)(nil)
