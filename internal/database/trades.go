package database

import (
	"context"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// InsertTrade appends a trade to the log
func (db *DB) InsertTrade(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (
			id, username, portfolio_number, date, symbol, action,
			shares, price, total, commission, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.q.ExecContext(ctx, query,
		t.ID, t.Username, t.PortfolioNumber, t.Date, t.Symbol, t.Action,
		t.Shares, t.Price, t.Total, t.Commission, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// DeleteTrades removes the whole trade log of a portfolio
func (db *DB) DeleteTrades(ctx context.Context, key models.PortfolioKey) error {
	query := `DELETE FROM trades WHERE username = $1 AND portfolio_number = $2`
	if _, err := db.q.ExecContext(ctx, query, key.Username, key.Number); err != nil {
		return fmt.Errorf("failed to delete trades: %w", err)
	}
	return nil
}

// CountTrades returns the size of the trade log
func (db *DB) CountTrades(ctx context.Context, key models.PortfolioKey) (int, error) {
	query := `SELECT COUNT(*) FROM trades WHERE username = $1 AND portfolio_number = $2`
	var n int
	if err := db.q.QueryRowContext(ctx, query, key.Username, key.Number).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

// ListTrades returns trades newest first
func (db *DB) ListTrades(ctx context.Context, key models.PortfolioKey, page ledger.PageRequest) ([]*models.Trade, error) {
	query := `
		SELECT id, username, portfolio_number, date, symbol, action,
		       shares, price, total, commission, created_at
		FROM trades
		WHERE username = $1 AND portfolio_number = $2
		ORDER BY date DESC, created_at DESC, id
		LIMIT $3 OFFSET $4
	`
	limit, offset := limitOffset(page)
	rows, err := db.q.QueryContext(ctx, query, key.Username, key.Number, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []*models.Trade{}
	for rows.Next() {
		var t models.Trade
		err := rows.Scan(
			&t.ID, &t.Username, &t.PortfolioNumber, &t.Date, &t.Symbol, &t.Action,
			&t.Shares, &t.Price, &t.Total, &t.Commission, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
