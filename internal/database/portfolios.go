package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// GetPortfolio loads a portfolio. Inside a transaction the row is locked.
func (db *DB) GetPortfolio(ctx context.Context, key models.PortfolioKey) (*models.Portfolio, error) {
	if err := db.lockPortfolio(ctx, key); err != nil {
		return nil, err
	}
	query := `
		SELECT username, portfolio_number, cash, base_value, stats, version, created_at, updated_at
		FROM portfolios
		WHERE username = $1 AND portfolio_number = $2
	`
	if db.tx != nil {
		query += " FOR UPDATE"
	}

	var p models.Portfolio
	var stats []byte
	err := db.q.QueryRowContext(ctx, query, key.Username, key.Number).Scan(
		&p.Username, &p.Number, &p.Cash, &p.BaseValue, &stats, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("portfolio %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &p.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats for %s: %w", key, err)
		}
	}
	return &p, nil
}

// SavePortfolio inserts or updates a portfolio and bumps its version
func (db *DB) SavePortfolio(ctx context.Context, p *models.Portfolio) error {
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	query := `
		INSERT INTO portfolios (username, portfolio_number, cash, base_value, stats, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
		ON CONFLICT (username, portfolio_number) DO UPDATE SET
			cash = EXCLUDED.cash,
			base_value = EXCLUDED.base_value,
			stats = EXCLUDED.stats,
			version = portfolios.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version, created_at
	`
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.UpdatedAt
	}
	err = db.q.QueryRowContext(ctx, query,
		p.Username, p.Number, p.Cash, p.BaseValue, stats, createdAt, p.UpdatedAt,
	).Scan(&p.Version, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save portfolio %s: %w", p.Key(), err)
	}
	return nil
}

// AppendValuePoint records the portfolio value at a point in time
func (db *DB) AppendValuePoint(ctx context.Context, key models.PortfolioKey, point models.ValuePoint) error {
	query := `
		INSERT INTO portfolio_value_history (username, portfolio_number, recorded_at, total_value, cash)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.q.ExecContext(ctx, query, key.Username, key.Number, point.Date, point.TotalValue, point.Cash)
	if err != nil {
		return fmt.Errorf("failed to append value point: %w", err)
	}
	return nil
}

// ListValuePoints returns up to limit of the most recent points, oldest first
func (db *DB) ListValuePoints(ctx context.Context, key models.PortfolioKey, limit int) ([]models.ValuePoint, error) {
	query := `
		SELECT recorded_at, total_value, cash FROM (
			SELECT id, recorded_at, total_value, cash
			FROM portfolio_value_history
			WHERE username = $1 AND portfolio_number = $2
			ORDER BY recorded_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY recorded_at ASC, id ASC
	`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := db.q.QueryContext(ctx, query, key.Username, key.Number, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list value history: %w", err)
	}
	defer rows.Close()

	var points []models.ValuePoint
	for rows.Next() {
		var v models.ValuePoint
		if err := rows.Scan(&v.Date, &v.TotalValue, &v.Cash); err != nil {
			return nil, fmt.Errorf("failed to scan value point: %w", err)
		}
		points = append(points, v)
	}
	return points, rows.Err()
}
