package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// CreatePriceData inserts a daily close, replacing any row for the same day
func (db *DB) CreatePriceData(ctx context.Context, p *models.PriceDataDaily) error {
	query := `
		INSERT INTO price_data_daily (symbol, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
		RETURNING id
	`
	err := db.q.QueryRowContext(ctx, query,
		p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, time.Now(),
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to create price data: %w", err)
	}
	return nil
}

// GetPriceDataBySymbolAndDate retrieves the close of a symbol on one day
func (db *DB) GetPriceDataBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (*models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, open, high, low, close, volume, created_at
		FROM price_data_daily
		WHERE symbol = $1 AND date = $2
	`
	var p models.PriceDataDaily
	err := db.q.QueryRowContext(ctx, query, symbol, date).Scan(
		&p.ID, &p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("price data for %s on %s: %w", symbol, date.Format("2006-01-02"), models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price data: %w", err)
	}
	return &p, nil
}

// GetLatestPriceData retrieves the most recent close of a symbol
func (db *DB) GetLatestPriceData(ctx context.Context, symbol string) (*models.PriceDataDaily, error) {
	query := `
		SELECT id, symbol, date, open, high, low, close, volume, created_at
		FROM price_data_daily
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT 1
	`
	var p models.PriceDataDaily
	err := db.q.QueryRowContext(ctx, query, symbol).Scan(
		&p.ID, &p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no price data for %s: %w", symbol, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price data: %w", err)
	}
	return &p, nil
}

// LatestCloses returns the most recent close of each symbol that has one
func (db *DB) LatestCloses(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	query := `
		SELECT DISTINCT ON (symbol) symbol, close
		FROM price_data_daily
		WHERE symbol = ANY($1)
		ORDER BY symbol, date DESC
	`
	rows, err := db.q.QueryContext(ctx, query, pq.Array(symbols))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest closes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var close decimal.Decimal
		if err := rows.Scan(&symbol, &close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		out[symbol] = close
	}
	return out, rows.Err()
}

// DeletePriceDataOlderThan removes closes older than a date
func (db *DB) DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error) {
	query := `DELETE FROM price_data_daily WHERE date < $1`
	result, err := db.q.ExecContext(ctx, query, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price data: %w", err)
	}
	return result.RowsAffected()
}
