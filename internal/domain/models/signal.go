package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// ClassIndex is the classifier output order. Argmax ties resolve to the lowest index.
type ClassIndex int

const (
	ClassSell ClassIndex = iota
	ClassHold
	ClassBuy
)

func (c ClassIndex) Direction() Direction {
	switch c {
	case ClassSell:
		return DirectionShort
	case ClassBuy:
		return DirectionLong
	default:
		return DirectionNeutral
	}
}

// ProbabilityTolerance is the allowed deviation of a probability vector's sum from 1.
const ProbabilityTolerance = 0.01

var ErrInvalidProbabilities = errors.New("invalid probability vector")

// ProbabilityVector holds class probabilities ordered sell, hold, buy.
// The zero value is not valid; build it with NewProbabilityVector.
type ProbabilityVector struct {
	p [3]float64
}

// FallbackProbabilities is what an absent or failing classifier answers with.
var FallbackProbabilities = ProbabilityVector{p: [3]float64{0.33, 0.34, 0.33}}

func NewProbabilityVector(sell, hold, buy float64) (ProbabilityVector, error) {
	p := [3]float64{sell, hold, buy}
	sum := 0.0
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ProbabilityVector{}, fmt.Errorf("%w: component %d is %v", ErrInvalidProbabilities, i, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > ProbabilityTolerance {
		return ProbabilityVector{}, fmt.Errorf("%w: sum %.4f outside 1±%.2f", ErrInvalidProbabilities, sum, ProbabilityTolerance)
	}
	return ProbabilityVector{p: p}, nil
}

// ProbabilityVectorFromSlice accepts exactly three values in sell, hold, buy order.
func ProbabilityVectorFromSlice(values []float64) (ProbabilityVector, error) {
	if len(values) != 3 {
		return ProbabilityVector{}, fmt.Errorf("%w: expected 3 classes, got %d", ErrInvalidProbabilities, len(values))
	}
	return NewProbabilityVector(values[0], values[1], values[2])
}

func (v ProbabilityVector) Sell() float64 { return v.p[ClassSell] }
func (v ProbabilityVector) Hold() float64 { return v.p[ClassHold] }
func (v ProbabilityVector) Buy() float64  { return v.p[ClassBuy] }

func (v ProbabilityVector) Slice() []float64 {
	return []float64{v.p[0], v.p[1], v.p[2]}
}

// Argmax returns the most probable class; on exact ties the lowest index wins.
func (v ProbabilityVector) Argmax() ClassIndex {
	best := ClassSell
	for i := ClassHold; i <= ClassBuy; i++ {
		if v.p[i] > v.p[best] {
			best = i
		}
	}
	return best
}

// Confidence is the probability mass of the argmax class.
func (v ProbabilityVector) Confidence() float64 {
	return v.p[v.Argmax()]
}

type probabilityJSON struct {
	Sell float64 `json:"sell"`
	Hold float64 `json:"hold"`
	Buy  float64 `json:"buy"`
}

func (v ProbabilityVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(probabilityJSON{Sell: v.Sell(), Hold: v.Hold(), Buy: v.Buy()})
}

func (v *ProbabilityVector) UnmarshalJSON(b []byte) error {
	var raw probabilityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	pv, err := NewProbabilityVector(raw.Sell, raw.Hold, raw.Buy)
	if err != nil {
		return err
	}
	*v = pv
	return nil
}

// InferenceResult is one classifier's answer for one request.
type InferenceResult struct {
	Direction     Direction
	Confidence    float64
	Probabilities ProbabilityVector
	Model         string
	Fallback      bool
}

func NewInferenceResult(model string, p ProbabilityVector, fallback bool) InferenceResult {
	return InferenceResult{
		Direction:     p.Argmax().Direction(),
		Confidence:    p.Confidence(),
		Probabilities: p,
		Model:         model,
		Fallback:      fallback,
	}
}

// DualInference combines primary and shadow answers. Only the primary drives the signal.
type DualInference struct {
	Primary      InferenceResult
	Shadow       InferenceResult
	ShadowAgreed bool
}

// Levels are the execution prices derived from direction and ATR.
type Levels struct {
	Entry       float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profit"`
	RiskReward  float64   `json:"risk_reward_ratio"`
	ATR         float64   `json:"atr"`
}

// ModelInfo describes a classifier bound to the engine.
type ModelInfo struct {
	Role    string `json:"role"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Loaded  bool   `json:"loaded"`
}
