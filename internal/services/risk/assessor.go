package risk

import (
	"fmt"
	"math"
	"time"

	"NeuralTrade/internal/domain/models"
	"NeuralTrade/internal/services/features"
	"NeuralTrade/pkg/logger"
)

// Severity weights per failure mode.
const (
	severityStaleData      = 8.0
	severityAnomalousMove  = 7.0
	severityLowConfidence  = 6.0
	severityDisagreement   = 7.0
	severityDrift          = 9.0
	severityHighVolatility = 5.0
	severityLowLiquidity   = 4.0
	severityNeutralSignal  = 3.0

	anomalousMoveThreshold  = 0.10
	highVolatilityThreshold = 0.05
	lowLiquidityRatio       = 0.5

	detectionAgreed    = 4.0
	detectionDisagreed = 6.0
	maxOccurrence      = 10.0

	// NoRiskFactorName is the sentinel factor returned when no check fires.
	NoRiskFactorName = "No significant risk factors"
)

// AssessInput is everything one assessment looks at.
type AssessInput struct {
	Window       *models.CandleWindow
	RequestTime  time.Time
	Direction    models.Direction
	Confidence   float64
	ShadowAgreed bool
}

// Assessor scores signals with FMEA (severity x occurrence x detection) and tracks drift
// from reported outcomes. Each instance owns its own outcome history.
type Assessor struct {
	cfg     Config
	history *OutcomeHistory
	now     func() time.Time
	logger  *logger.Logger
}

type Option func(*Assessor)

// WithClock overrides the wall clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(a *Assessor) { a.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Assessor) { a.logger = l }
}

func NewAssessor(cfg Config, opts ...Option) *Assessor {
	def := DefaultConfig()
	if cfg.DriftWindow <= 0 {
		cfg.DriftWindow = def.DriftWindow
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = def.HistoryCapacity
	}
	if cfg.VolatilityCandles <= 0 {
		cfg.VolatilityCandles = def.VolatilityCandles
	}
	if cfg.Bands == (Bands{}) {
		cfg.Bands = def.Bands
	}

	a := &Assessor{
		cfg:     cfg,
		history: NewOutcomeHistory(cfg.HistoryCapacity),
		now:     time.Now,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type check struct {
	factor     models.RiskFactor
	mitigation string
}

// Assess evaluates every failure mode independently; any number may fire.
func (a *Assessor) Assess(in AssessInput) models.RiskAssessment {
	var fired []check
	add := func(name string, cat models.RiskCategory, sev float64, desc, mitigation string) {
		fired = append(fired, check{
			factor:     models.RiskFactor{Name: name, Category: cat, Severity: sev, Description: desc},
			mitigation: mitigation,
		})
	}

	candles := in.Window.Candles()
	recent := in.Window.Tail(a.cfg.VolatilityCandles)

	// data
	age := a.now().Sub(in.RequestTime)
	stale := age > a.cfg.MaxDataAge
	if stale {
		add("Stale Data", models.RiskCategoryData, severityStaleData,
			fmt.Sprintf("Data is %.1fs old (max %.1fs)", age.Seconds(), a.cfg.MaxDataAge.Seconds()),
			"Reject signal and request fresh data")
	}
	if move := features.MaxCloseChange(candles); move > anomalousMoveThreshold {
		add("Anomalous Price Movement", models.RiskCategoryData, severityAnomalousMove,
			fmt.Sprintf("Max single-candle move of %.1f%% detected", move*100),
			"Verify data integrity before execution")
	}

	// model
	if in.Confidence < a.cfg.MinConfidence {
		add("Low Model Confidence", models.RiskCategoryModel, severityLowConfidence,
			fmt.Sprintf("Confidence %.1f%% below threshold %.1f%%", in.Confidence*100, a.cfg.MinConfidence*100),
			"Reduce position size or skip trade")
	}
	if !in.ShadowAgreed {
		add("Model Disagreement", models.RiskCategoryModel, severityDisagreement,
			"Primary and shadow models disagree on direction",
			"Wait for model consensus before entry")
	}
	drift, accuracy := a.detectDrift()
	if drift {
		add("Model Drift Detected", models.RiskCategoryModel, severityDrift,
			fmt.Sprintf("Recent accuracy below %.0f%% (%.0f%%)", (1-a.cfg.DriftThreshold)*100, accuracy*100),
			"Trigger model retraining pipeline")
	}

	// market
	if avgClose := features.MeanClose(recent); avgClose > 0 {
		if vol := features.MeanRange(recent) / avgClose; vol > highVolatilityThreshold {
			add("High Volatility", models.RiskCategoryMarket, severityHighVolatility,
				fmt.Sprintf("Average range %.1f%% of price", vol*100),
				"Widen stop-loss or reduce leverage")
		}
	}
	if avgVol := features.MeanVolume(recent); len(recent) > 0 {
		last := recent[len(recent)-1].Volume
		if last < lowLiquidityRatio*avgVol {
			add("Low Liquidity", models.RiskCategoryMarket, severityLowLiquidity,
				fmt.Sprintf("Current volume %.0f%% of average", last/avgVol*100),
				"Use limit orders to avoid slippage")
		}
	}

	// execution
	if in.Direction == models.DirectionNeutral {
		add("Neutral Signal", models.RiskCategoryExecution, severityNeutralSignal,
			"Model predicts no clear direction",
			"Wait for stronger signal confirmation")
	}

	severity := 1.0
	if len(fired) > 0 {
		sum := 0.0
		for _, c := range fired {
			sum += c.factor.Severity
		}
		severity = sum / float64(len(fired))
	}
	occurrence := math.Min(maxOccurrence, float64(2*len(fired)+1))
	detection := detectionDisagreed
	if in.ShadowAgreed {
		detection = detectionAgreed
	}
	rpn := severity * occurrence * detection

	factors := make([]models.RiskFactor, 0, len(fired))
	mitigations := make([]string, 0, len(fired))
	for _, c := range fired {
		factors = append(factors, c.factor)
		mitigations = append(mitigations, c.mitigation)
	}
	if len(factors) == 0 {
		factors = append(factors, models.RiskFactor{
			Name:        NoRiskFactorName,
			Category:    models.RiskCategoryExecution,
			Severity:    0,
			Description: "All risk checks passed",
		})
	}

	level := a.cfg.Bands.Classify(rpn)
	a.logger.Debug("risk assessment complete",
		logger.String("risk_level", string(level)),
		logger.Float64("rpn", rpn),
		logger.Int("factors", len(fired)),
		logger.Bool("stale_data", stale),
		logger.Bool("drift_detected", drift),
		logger.Bool("shadow_agreed", in.ShadowAgreed),
	)

	return models.RiskAssessment{
		Level:         level,
		Score:         rpn,
		Severity:      severity,
		Occurrence:    occurrence,
		Detection:     detection,
		Factors:       factors,
		Mitigations:   mitigations,
		StaleData:     stale,
		DriftDetected: drift,
		ShadowAgreed:  in.ShadowAgreed,
	}
}

// detectDrift never flags with fewer than DriftWindow outcomes.
func (a *Assessor) detectDrift() (bool, float64) {
	accuracy, n := a.history.Accuracy(a.cfg.DriftWindow)
	if n < a.cfg.DriftWindow {
		return false, accuracy
	}
	return accuracy < 1-a.cfg.DriftThreshold, accuracy
}

// DriftDetected reports the current drift state without running a full assessment.
func (a *Assessor) DriftDetected() bool {
	drift, _ := a.detectDrift()
	return drift
}

// RecordOutcome feeds back whether a past prediction was right. Safe to call concurrently with Assess.
func (a *Assessor) RecordOutcome(wasCorrect bool) {
	a.history.Append(wasCorrect)
	a.logger.Debug("outcome recorded",
		logger.Bool("was_correct", wasCorrect),
		logger.Int("history_size", a.history.Len()),
	)
}

// History exposes the outcome ring for inspection.
func (a *Assessor) History() *OutcomeHistory { return a.history }
