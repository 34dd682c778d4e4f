package models

import "time"

// SignalPrediction is the pipeline output handed to traders and sinks.
type SignalPrediction struct {
	ID               string            `json:"id"`
	Exchange         string            `json:"exchange"`
	Symbol           string            `json:"symbol"`
	Timeframe        string            `json:"timeframe"`
	Direction        Direction         `json:"direction"`
	Confidence       float64           `json:"confidence"`
	Probabilities    ProbabilityVector `json:"probabilities"`
	Levels           Levels            `json:"levels"`
	Risk             RiskAssessment    `json:"risk_assessment"`
	ModelVersion     string            `json:"model_version"`
	Fallback         bool              `json:"fallback"`
	RequestTimestamp int64             `json:"request_timestamp"` // unix ms
	Timestamp        time.Time         `json:"timestamp"`
	ProcessingTimeMs float64           `json:"processing_time_ms"`
}

func (s *SignalPrediction) Key() string {
	return WindowMeta{Exchange: s.Exchange, Symbol: s.Symbol, Timeframe: s.Timeframe}.Key()
}

// Outcome is real-world feedback on a past prediction.
type Outcome struct {
	PredictionID string    `json:"prediction_id"`
	WasCorrect   bool      `json:"was_correct"`
	RecordedAt   time.Time `json:"recorded_at"`
}
