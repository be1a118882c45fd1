package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open holding in one portfolio
type Position struct {
	Username        string          `json:"Username"`
	PortfolioNumber int             `json:"PortfolioNumber"`
	Symbol          string          `json:"Symbol"`
	Shares          decimal.Decimal `json:"Shares"`
	AvgPrice        decimal.Decimal `json:"AvgPrice"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Key returns the owning portfolio's identity
func (p *Position) Key() PortfolioKey {
	return PortfolioKey{Username: p.Username, Number: p.PortfolioNumber}
}

// CostBasis is shares times average cost
func (p *Position) CostBasis() decimal.Decimal {
	return p.Shares.Mul(p.AvgPrice)
}

// PositionValuation joins a position with its latest known quote
type PositionValuation struct {
	Symbol              string          `json:"symbol"`
	Shares              decimal.Decimal `json:"shares"`
	AvgCost             decimal.Decimal `json:"avgCost"`
	Quote               decimal.Decimal `json:"quote"`
	QuoteMissing        bool            `json:"quoteMissing,omitempty"`
	Value               decimal.Decimal `json:"value"`
	UnrealizedPL        decimal.Decimal `json:"unrealizedPL"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealizedPLPercent"`
}
