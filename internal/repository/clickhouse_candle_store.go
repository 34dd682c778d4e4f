package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"NeuralTrade/internal/domain/models"
	domrepo "NeuralTrade/internal/domain/repository"
	pkgch "NeuralTrade/pkg/clickhouse"
	applogger "NeuralTrade/pkg/logger"
)

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHCandleStore{db: ch.DB(), table: table, l: l}
}

// CandleSchema returns the DDL for the candle table.
func CandleSchema(table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            exchange  LowCardinality(String),
            symbol    LowCardinality(String),
            timeframe LowCardinality(String),
            ts        DateTime64(3, 'UTC'),
            open      Float64,
            high      Float64,
            low       Float64,
            close     Float64,
            volume    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (exchange, symbol, timeframe, ts)`, table)
}

// GetLatestNCandles reads newest first and flips to ascending order.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, meta models.WindowMeta, n int) ([]models.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	tf, err := domrepo.ParseTimeframe(meta.Timeframe)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE exchange = ? AND symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), meta.Exchange, meta.Symbol, meta.Timeframe, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", s.table),
			applogger.String("window", meta.Key()),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var (
			c  models.Candle
			ts time.Time
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timestamp = ts.UnixMilli()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	if gaps := countGaps(out, tf.Duration()); gaps > 0 {
		s.l.Warn("stored candles have gaps",
			applogger.String("window", meta.Key()),
			applogger.Int("gaps", gaps),
		)
	}

	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("window", meta.Key()),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// SaveCandles upserts candles for one market; ReplacingMergeTree collapses duplicates by ts.
func (s *CHCandleStore) SaveCandles(ctx context.Context, meta models.WindowMeta, candles []models.Candle) error {
	if _, err := domrepo.ParseTimeframe(meta.Timeframe); err != nil {
		return err
	}
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{
			meta.Exchange, meta.Symbol, meta.Timeframe,
			time.UnixMilli(c.Timestamp).UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		})
	}
	q := fmt.Sprintf("INSERT INTO %s (exchange, symbol, timeframe, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	if err := pkgch.NewFromDB(s.db).InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("save candles: %w", err)
	}
	return nil
}

// countGaps counts consecutive candles further apart than one bar.
func countGaps(candles []models.Candle, bar time.Duration) int {
	if bar <= 0 {
		return 0
	}
	gaps := 0
	for i := 1; i < len(candles); i++ {
		if time.Duration(candles[i].Timestamp-candles[i-1].Timestamp)*time.Millisecond > bar {
			gaps++
		}
	}
	return gaps
}
