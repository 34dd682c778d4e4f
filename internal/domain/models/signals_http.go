package models

// Requests for signal HTTP endpoints and candle-window queue events.
// Structural checks live in tags; window invariants are enforced by NewCandleWindow.

type CandleInput struct {
	Timestamp int64   `json:"timestamp" validate:"gt=0"`
	Open      float64 `json:"open" validate:"gt=0"`
	High      float64 `json:"high" validate:"gt=0"`
	Low       float64 `json:"low" validate:"gt=0"`
	Close     float64 `json:"close" validate:"gt=0"`
	Volume    float64 `json:"volume" validate:"gte=0"`
}

type PredictRequest struct {
	Exchange         string        `json:"exchange" validate:"required,oneof=binance coinbase kraken bybit okx kucoin"`
	Symbol           string        `json:"symbol" validate:"required,pair"`
	Timeframe        string        `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d"`
	Candles          []CandleInput `json:"candles" validate:"required,min=1,max=500,dive"`
	RequestTimestamp *int64        `json:"request_timestamp" validate:"omitempty,gte=0"` // unix ms; absent means receipt time
}

func (r *PredictRequest) Meta() WindowMeta {
	return WindowMeta{Exchange: r.Exchange, Symbol: r.Symbol, Timeframe: r.Timeframe}
}

func (r *PredictRequest) ToCandles() []Candle {
	out := make([]Candle, len(r.Candles))
	for i, c := range r.Candles {
		out[i] = Candle(c)
	}
	return out
}

type LatestPredictRequest struct {
	Exchange  string `query:"exchange" json:"exchange" validate:"required,oneof=binance coinbase kraken bybit okx kucoin"`
	Symbol    string `query:"symbol" json:"symbol" validate:"required,pair"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=500"`
}

type FeedbackRequest struct {
	PredictionID string `json:"prediction_id" validate:"required,max=64"`
	WasCorrect   *bool  `json:"was_correct" validate:"required"`
}

type SignalLookupRequest struct {
	ID string `param:"id" validate:"required,max=64"`
}
