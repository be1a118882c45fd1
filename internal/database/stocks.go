package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// UpsertStock inserts a catalog entry or refreshes its descriptive fields
func (db *DB) UpsertStock(ctx context.Context, s *models.Stock) error {
	query := `
		INSERT INTO stocks (symbol, name, exchange, sector, industry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), stocks.name),
			exchange = COALESCE(EXCLUDED.exchange, stocks.exchange),
			sector = COALESCE(EXCLUDED.sector, stocks.sector),
			industry = COALESCE(EXCLUDED.industry, stocks.industry),
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	err := db.q.QueryRowContext(ctx, query,
		s.Symbol, s.Name, nullString(s.Exchange), nullString(s.Sector), nullString(s.Industry), time.Now(),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save stock %s: %w", s.Symbol, err)
	}
	return nil
}

// GetStock retrieves a catalog entry by symbol
func (db *DB) GetStock(ctx context.Context, symbol string) (*models.Stock, error) {
	query := `
		SELECT symbol, name, exchange, sector, industry, created_at, updated_at
		FROM stocks
		WHERE symbol = $1
	`
	var s models.Stock
	var exchange, sector, industry sql.NullString
	err := db.q.QueryRowContext(ctx, query, symbol).Scan(
		&s.Symbol, &s.Name, &exchange, &sector, &industry, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock %s: %w", symbol, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	if exchange.Valid {
		s.Exchange = exchange.String
	}
	if sector.Valid {
		s.Sector = sector.String
	}
	if industry.Valid {
		s.Industry = industry.String
	}
	return &s, nil
}

// SymbolExists reports whether a symbol is in the catalog
func (db *DB) SymbolExists(ctx context.Context, symbol string) (bool, error) {
	var exists bool
	err := db.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stocks WHERE symbol = $1)`, symbol).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check symbol %s: %w", symbol, err)
	}
	return exists, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
