package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"NeuralTrade/internal/domain/models"
	pkgch "NeuralTrade/pkg/clickhouse"
)

// CHSignalStore implements SignalStore for ClickHouse.
type CHSignalStore struct {
	client       *pkgch.Client
	db           *sql.DB
	signalTable  string
	outcomeTable string
	candleTable  string
}

func NewCHSignalStore(ch *pkgch.Client, candleTable string) *CHSignalStore {
	return &CHSignalStore{
		client:       ch,
		db:           ch.DB(),
		signalTable:  "signals",
		outcomeTable: "signal_outcomes",
		candleTable:  candleTable,
	}
}

func (s *CHSignalStore) schema() []string {
	return []string{
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id                 String,
            exchange           LowCardinality(String),
            symbol             LowCardinality(String),
            timeframe          LowCardinality(String),
            direction          LowCardinality(String),
            confidence         Float64,
            prob_sell          Float64,
            prob_hold          Float64,
            prob_buy           Float64,
            entry_price        Float64,
            stop_loss          Float64,
            take_profit        Array(Float64),
            risk_reward        Float64,
            risk_level         LowCardinality(String),
            risk_score         Float64,
            risk_json          String,
            model_version      String,
            fallback           UInt8,
            processing_ms      Float64,
            ts                 DateTime64(3, 'UTC')
        ) ENGINE = MergeTree
        ORDER BY (exchange, symbol, ts)`, s.signalTable),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            prediction_id String,
            was_correct   UInt8,
            recorded_at   DateTime64(3, 'UTC')
        ) ENGINE = MergeTree
        ORDER BY (recorded_at, prediction_id)`, s.outcomeTable),
		CandleSchema(s.candleTable),
	}
}

func (s *CHSignalStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, s.schema())
}

func (s *CHSignalStore) SavePrediction(ctx context.Context, p *models.SignalPrediction) error {
	riskJSON, err := json.Marshal(p.Risk)
	if err != nil {
		return fmt.Errorf("marshal risk: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, exchange, symbol, timeframe, direction, confidence,
        prob_sell, prob_hold, prob_buy, entry_price, stop_loss, take_profit, risk_reward,
        risk_level, risk_score, risk_json, model_version, fallback, processing_ms, ts)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.signalTable)

	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.Exchange, p.Symbol, p.Timeframe, string(p.Direction), p.Confidence,
		p.Probabilities.Sell(), p.Probabilities.Hold(), p.Probabilities.Buy(),
		p.Levels.Entry, p.Levels.StopLoss, p.Levels.TakeProfits, p.Levels.RiskReward,
		string(p.Risk.Level), p.Risk.Score, string(riskJSON),
		p.ModelVersion, boolToUInt8(p.Fallback), p.ProcessingTimeMs, p.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save prediction: %w", err)
	}
	return nil
}

func (s *CHSignalStore) SaveOutcome(ctx context.Context, o models.Outcome) error {
	recordedAt := o.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	q := fmt.Sprintf("INSERT INTO %s (prediction_id, was_correct, recorded_at) VALUES (?, ?, ?)", s.outcomeTable)
	if _, err := s.db.ExecContext(ctx, q, o.PredictionID, boolToUInt8(o.WasCorrect), recordedAt.UTC()); err != nil {
		return fmt.Errorf("save outcome: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSignalStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
