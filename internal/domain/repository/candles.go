package repository

import (
	"context"
	"fmt"
	"time"

	"NeuralTrade/internal/domain/models"
)

// Timeframe is a candle bucket width as written on the wire ("1m", "1h", ...).
type Timeframe string

var timeframeWidths = map[Timeframe]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseTimeframe accepts only the widths the candle table is bucketed by.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeWidths[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bucket width, or zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	return timeframeWidths[tf]
}

// CandleStore reads stored candles for the latest-prediction path.
type CandleStore interface {
	// GetLatestNCandles returns up to n most recent candles in ascending time order.
	GetLatestNCandles(ctx context.Context, meta models.WindowMeta, n int) ([]models.Candle, error)
}

// CandleWriter appends ingested candles.
type CandleWriter interface {
	SaveCandles(ctx context.Context, meta models.WindowMeta, candles []models.Candle) error
}
