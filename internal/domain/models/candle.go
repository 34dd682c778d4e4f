package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCandle = errors.New("invalid candle")
	ErrInvalidWindow = errors.New("invalid candle window")
)

// Candle is one OHLCV bar. Timestamp is unix milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Validate checks price positivity and low <= open,close <= high.
func (c Candle) Validate() error {
	switch {
	case !positive(c.Open):
		return fmt.Errorf("%w: open must be > 0, got %v", ErrInvalidCandle, c.Open)
	case !positive(c.High):
		return fmt.Errorf("%w: high must be > 0, got %v", ErrInvalidCandle, c.High)
	case !positive(c.Low):
		return fmt.Errorf("%w: low must be > 0, got %v", ErrInvalidCandle, c.Low)
	case !positive(c.Close):
		return fmt.Errorf("%w: close must be > 0, got %v", ErrInvalidCandle, c.Close)
	case math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0:
		return fmt.Errorf("%w: volume must be >= 0, got %v", ErrInvalidCandle, c.Volume)
	case c.High < c.Low:
		return fmt.Errorf("%w: high %v below low %v", ErrInvalidCandle, c.High, c.Low)
	case c.Open < c.Low || c.Open > c.High:
		return fmt.Errorf("%w: open %v outside [%v, %v]", ErrInvalidCandle, c.Open, c.Low, c.High)
	case c.Close < c.Low || c.Close > c.High:
		return fmt.Errorf("%w: close %v outside [%v, %v]", ErrInvalidCandle, c.Close, c.Low, c.High)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// WindowMeta identifies the market a window belongs to.
type WindowMeta struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

func (m WindowMeta) Key() string {
	return m.Exchange + ":" + m.Symbol + ":" + m.Timeframe
}

// WindowBounds is the accepted window length range. MinLen differs per deployment (50 or 60).
type WindowBounds struct {
	MinLen int
	MaxLen int
}

func DefaultWindowBounds() WindowBounds {
	return WindowBounds{MinLen: 50, MaxLen: 500}
}

// CandleWindow is a validated, strictly time-ordered candle sequence.
// It is built once per request and never mutated; accessors hand out copies.
type CandleWindow struct {
	meta    WindowMeta
	candles []Candle
}

func NewCandleWindow(meta WindowMeta, candles []Candle, bounds WindowBounds) (*CandleWindow, error) {
	if len(candles) < bounds.MinLen || len(candles) > bounds.MaxLen {
		return nil, fmt.Errorf("%w: %d candles, need between %d and %d",
			ErrInvalidWindow, len(candles), bounds.MinLen, bounds.MaxLen)
	}

	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return nil, fmt.Errorf("%w: timestamp at %d (%d) not after previous (%d)",
				ErrInvalidWindow, i, c.Timestamp, candles[i-1].Timestamp)
		}
	}

	owned := make([]Candle, len(candles))
	copy(owned, candles)
	return &CandleWindow{meta: meta, candles: owned}, nil
}

func (w *CandleWindow) Meta() WindowMeta { return w.meta }

func (w *CandleWindow) Len() int { return len(w.candles) }

func (w *CandleWindow) Candles() []Candle {
	out := make([]Candle, len(w.candles))
	copy(out, w.candles)
	return out
}

// Tail returns a copy of the last n candles, or all of them if fewer exist.
func (w *CandleWindow) Tail(n int) []Candle {
	if n > len(w.candles) {
		n = len(w.candles)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Candle, n)
	copy(out, w.candles[len(w.candles)-n:])
	return out
}

func (w *CandleWindow) Last() Candle {
	return w.candles[len(w.candles)-1]
}
