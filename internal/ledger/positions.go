package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// PositionBook owns the open positions of a portfolio
type PositionBook struct {
	repo Repository
	now  func() time.Time
}

// NewPositionBook binds a PositionBook to a repository
func NewPositionBook(repo Repository, now func() time.Time) *PositionBook {
	return &PositionBook{repo: repo, now: now}
}

// WeightedAverage is the cost basis after buying shares at price on top of
// an existing holding
func WeightedAverage(oldAvg, oldShares, price, shares decimal.Decimal) decimal.Decimal {
	total := oldShares.Add(shares)
	if total.IsZero() {
		return decimal.Zero
	}
	return oldAvg.Mul(oldShares).Add(price.Mul(shares)).Div(total)
}

// ApplyBuy adds shares to the symbol's position, creating it when absent
func (b *PositionBook) ApplyBuy(ctx context.Context, key models.PortfolioKey, symbol string, shares, price decimal.Decimal) (*models.Position, error) {
	pos, err := b.repo.GetPosition(ctx, key, symbol)
	switch {
	case err == nil:
		pos.AvgPrice = WeightedAverage(pos.AvgPrice, pos.Shares, price, shares)
		pos.Shares = pos.Shares.Add(shares)
	case errors.Is(err, models.ErrNotFound):
		count, err := b.repo.CountPositions(ctx, key)
		if err != nil {
			return nil, storeError("count positions", key, err)
		}
		if count >= models.MaxPositions {
			return nil, newError(KindPositionLimitExceeded, "buy", key, symbol,
				"portfolio already holds %d positions", count)
		}
		pos = &models.Position{
			Username:        key.Username,
			PortfolioNumber: key.Number,
			Symbol:          symbol,
			Shares:          shares,
			AvgPrice:        price,
			CreatedAt:       b.now(),
		}
	default:
		return nil, storeError("get position", key, err)
	}

	pos.UpdatedAt = b.now()
	if err := b.repo.SavePosition(ctx, pos); err != nil {
		return nil, storeError("save position", key, err)
	}
	return pos, nil
}

// ApplySell removes shares from the symbol's position. The average cost is
// left untouched and the position is deleted once it reaches zero shares.
// It returns nil when the position was closed.
func (b *PositionBook) ApplySell(ctx context.Context, key models.PortfolioKey, symbol string, shares decimal.Decimal) (*models.Position, error) {
	pos, err := b.CheckSell(ctx, key, symbol, shares)
	if err != nil {
		return nil, err
	}

	pos.Shares = pos.Shares.Sub(shares)
	if pos.Shares.IsZero() {
		if err := b.repo.DeletePosition(ctx, key, symbol); err != nil {
			return nil, storeError("delete position", key, err)
		}
		return nil, nil
	}

	pos.UpdatedAt = b.now()
	if err := b.repo.SavePosition(ctx, pos); err != nil {
		return nil, storeError("save position", key, err)
	}
	return pos, nil
}

// CheckSell verifies a sale is covered without writing anything
func (b *PositionBook) CheckSell(ctx context.Context, key models.PortfolioKey, symbol string, shares decimal.Decimal) (*models.Position, error) {
	pos, err := b.repo.GetPosition(ctx, key, symbol)
	if errors.Is(err, models.ErrNotFound) {
		return nil, newError(KindInsufficientShares, "sell", key, symbol, "no open position")
	}
	if err != nil {
		return nil, storeError("get position", key, err)
	}
	if pos.Shares.LessThan(shares) {
		return nil, newError(KindInsufficientShares, "sell", key, symbol,
			"holding %s shares, cannot sell %s", pos.Shares.String(), shares.String())
	}
	return pos, nil
}

// Reset deletes every position of the portfolio
func (b *PositionBook) Reset(ctx context.Context, key models.PortfolioKey) error {
	return storeError("delete positions", key, b.repo.DeletePositions(ctx, key))
}

// Replace discards all positions and stores the given set
func (b *PositionBook) Replace(ctx context.Context, key models.PortfolioKey, positions []*models.Position) error {
	if len(positions) > models.MaxPositions {
		return newError(KindPositionLimitExceeded, "import", key, "",
			"%d positions exceed the limit of %d", len(positions), models.MaxPositions)
	}
	if err := b.Reset(ctx, key); err != nil {
		return err
	}
	now := b.now()
	for _, p := range positions {
		p.Username = key.Username
		p.PortfolioNumber = key.Number
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := b.repo.SavePosition(ctx, p); err != nil {
			return storeError("save position", key, err)
		}
	}
	return nil
}
