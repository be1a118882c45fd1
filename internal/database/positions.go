package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// GetPosition retrieves the open position of a symbol
func (db *DB) GetPosition(ctx context.Context, key models.PortfolioKey, symbol string) (*models.Position, error) {
	query := `
		SELECT username, portfolio_number, symbol, shares, avg_price, created_at, updated_at
		FROM positions
		WHERE username = $1 AND portfolio_number = $2 AND symbol = $3
	`
	var p models.Position
	err := db.q.QueryRowContext(ctx, query, key.Username, key.Number, symbol).Scan(
		&p.Username, &p.PortfolioNumber, &p.Symbol, &p.Shares, &p.AvgPrice, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s %s: %w", key, symbol, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &p, nil
}

// SavePosition inserts or updates a position
func (db *DB) SavePosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (username, portfolio_number, symbol, shares, avg_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username, portfolio_number, symbol) DO UPDATE SET
			shares = EXCLUDED.shares,
			avg_price = EXCLUDED.avg_price,
			updated_at = EXCLUDED.updated_at
	`
	_, err := db.q.ExecContext(ctx, query,
		p.Username, p.PortfolioNumber, p.Symbol, p.Shares, p.AvgPrice, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save position %s: %w", p.Symbol, err)
	}
	return nil
}

// DeletePosition removes the position of a symbol
func (db *DB) DeletePosition(ctx context.Context, key models.PortfolioKey, symbol string) error {
	query := `DELETE FROM positions WHERE username = $1 AND portfolio_number = $2 AND symbol = $3`
	if _, err := db.q.ExecContext(ctx, query, key.Username, key.Number, symbol); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	return nil
}

// DeletePositions removes every position of a portfolio
func (db *DB) DeletePositions(ctx context.Context, key models.PortfolioKey) error {
	query := `DELETE FROM positions WHERE username = $1 AND portfolio_number = $2`
	if _, err := db.q.ExecContext(ctx, query, key.Username, key.Number); err != nil {
		return fmt.Errorf("failed to delete existing positions: %w", err)
	}
	return nil
}

// CountPositions returns the number of open positions
func (db *DB) CountPositions(ctx context.Context, key models.PortfolioKey) (int, error) {
	query := `SELECT COUNT(*) FROM positions WHERE username = $1 AND portfolio_number = $2`
	var n int
	if err := db.q.QueryRowContext(ctx, query, key.Username, key.Number).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return n, nil
}

// ListPositions returns positions ordered by symbol
func (db *DB) ListPositions(ctx context.Context, key models.PortfolioKey, page ledger.PageRequest) ([]*models.Position, error) {
	query := `
		SELECT username, portfolio_number, symbol, shares, avg_price, created_at, updated_at
		FROM positions
		WHERE username = $1 AND portfolio_number = $2
		ORDER BY symbol ASC
		LIMIT $3 OFFSET $4
	`
	limit, offset := limitOffset(page)
	rows, err := db.q.QueryContext(ctx, query, key.Username, key.Number, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()

	positions := []*models.Position{}
	for rows.Next() {
		var p models.Position
		err := rows.Scan(&p.Username, &p.PortfolioNumber, &p.Symbol, &p.Shares, &p.AvgPrice, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
