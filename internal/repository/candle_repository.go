package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// CandleRepository provides data access methods for the local candle cache.
// Baseline pricing, market change and backfill read from here; the sync path
// upserts candles fetched from the exchange.
type CandleRepository struct {
	db *sql.DB
}

// NewCandleRepository creates a new CandleRepository with the provided database connection.
func NewCandleRepository(db *sql.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// Upsert inserts or replaces candles keyed by (symbol, period, ts).
func (r *CandleRepository) Upsert(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin candle upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candle (symbol, period, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, period, ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			fetched_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare candle upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx,
			c.Symbol, c.Period, c.TS.UTC().Format(time.RFC3339),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert candle %s/%s: %w", c.Symbol, c.Period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candle upsert: %w", err)
	}
	return nil
}

// GetRange retrieves candles for a symbol and period within [from, to),
// sorted ascending by ts.
func (r *CandleRepository) GetRange(ctx context.Context, symbol, period string, from, to time.Time) ([]model.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, period, ts, open, high, low, close, volume
		FROM candle
		WHERE symbol = ? AND period = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, period, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query candle table: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle table: %w", err)
	}
	return out, nil
}

// GetDay retrieves the candles of one UTC day, ascending.
func (r *CandleRepository) GetDay(ctx context.Context, symbol, period string, dayStart time.Time) ([]model.Candle, error) {
	return r.GetRange(ctx, symbol, period, dayStart, dayStart.Add(24*time.Hour))
}

// GetDailyAtOrBefore retrieves the most recent daily candle whose bar start
// is at or before ts. Returns apperrors.ErrCandleNotFound when the cache has
// no daily candle that old.
func (r *CandleRepository) GetDailyAtOrBefore(ctx context.Context, symbol string, ts time.Time) (model.Candle, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT symbol, period, ts, open, high, low, close, volume
		FROM candle
		WHERE symbol = ? AND period = ? AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1
	`, symbol, model.PeriodDaily, ts.UTC().Format(time.RFC3339))

	c, err := scanCandle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Candle{}, apperrors.ErrCandleNotFound
		}
		return model.Candle{}, err
	}
	return c, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCandle(s scanner) (model.Candle, error) {
	var c model.Candle
	var tsStr string
	if err := s.Scan(&c.Symbol, &c.Period, &tsStr, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Candle{}, err
		}
		return model.Candle{}, fmt.Errorf("failed to scan candle table results: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return model.Candle{}, fmt.Errorf("failed to parse candle ts: %w", err)
	}
	c.TS = ts.UTC()
	return c, nil
}
