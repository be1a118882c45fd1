package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// CashAccount owns the cash balance and base value of a portfolio
type CashAccount struct {
	repo Repository
	now  func() time.Time
}

// NewCashAccount binds a CashAccount to a repository, usually a transaction
func NewCashAccount(repo Repository, now func() time.Time) *CashAccount {
	return &CashAccount{repo: repo, now: now}
}

// Load returns the portfolio, or a new zero-balance one when it does not exist yet
func (c *CashAccount) Load(ctx context.Context, key models.PortfolioKey) (*models.Portfolio, error) {
	p, err := c.repo.GetPortfolio(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		now := c.now()
		return &models.Portfolio{
			Username:  key.Username,
			Number:    key.Number,
			Cash:      decimal.Zero,
			BaseValue: decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, storeError("load portfolio", key, err)
	}
	return p, nil
}

// Debit withdraws amount, failing with InsufficientFunds when cash is short
func (c *CashAccount) Debit(ctx context.Context, key models.PortfolioKey, amount decimal.Decimal) (*models.Portfolio, error) {
	p, err := c.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(p.Cash) {
		return nil, newError(KindInsufficientFunds, "debit", key, "",
			"need %s but only %s available", amount.String(), p.Cash.String())
	}
	p.Cash = p.Cash.Sub(amount)
	return p, c.save(ctx, p)
}

// Credit adds trade proceeds to the balance
func (c *CashAccount) Credit(ctx context.Context, key models.PortfolioKey, amount decimal.Decimal) (*models.Portfolio, error) {
	p, err := c.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	p.Cash = p.Cash.Add(amount)
	return p, c.save(ctx, p)
}

// Deposit adds cash and records the first non-zero deposit as the base value
func (c *CashAccount) Deposit(ctx context.Context, key models.PortfolioKey, amount decimal.Decimal) (*models.Portfolio, error) {
	p, err := c.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	p.Cash = p.Cash.Add(amount)
	if p.BaseValue.IsZero() && !amount.IsZero() {
		p.BaseValue = amount
	}
	return p, c.save(ctx, p)
}

// Reset zeroes cash and base value
func (c *CashAccount) Reset(ctx context.Context, key models.PortfolioKey) (*models.Portfolio, error) {
	p, err := c.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	p.Cash = decimal.Zero
	p.BaseValue = decimal.Zero
	return p, c.save(ctx, p)
}

// Set overwrites both fields, used by imports
func (c *CashAccount) Set(ctx context.Context, key models.PortfolioKey, cash, baseValue decimal.Decimal) (*models.Portfolio, error) {
	p, err := c.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	p.Cash = cash
	p.BaseValue = baseValue
	return p, c.save(ctx, p)
}

func (c *CashAccount) save(ctx context.Context, p *models.Portfolio) error {
	p.UpdatedAt = c.now()
	return storeError("save portfolio", p.Key(), c.repo.SavePortfolio(ctx, p))
}
