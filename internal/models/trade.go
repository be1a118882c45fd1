package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade action constants
const (
	ActionBuy         = "Buy"
	ActionSell        = "Sell"
	ActionCashDeposit = "CashDeposit"
)

// CashSymbol labels cash in deposits and allocation breakdowns
const CashSymbol = "CASH"

// Trade is an executed buy, sell or cash deposit
type Trade struct {
	ID              string          `json:"id"`
	Username        string          `json:"Username"`
	PortfolioNumber int             `json:"PortfolioNumber"`
	Date            time.Time       `json:"Date"`
	Symbol          string          `json:"Symbol"`
	Action          string          `json:"Action"`
	Shares          decimal.Decimal `json:"Shares"`
	Price           decimal.Decimal `json:"Price"`
	Total           decimal.Decimal `json:"Total"`
	Commission      decimal.Decimal `json:"Commission"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Key returns the owning portfolio's identity
func (t *Trade) Key() PortfolioKey {
	return PortfolioKey{Username: t.Username, Number: t.PortfolioNumber}
}

// IsValidAction reports whether action is one of the known trade actions
func IsValidAction(action string) bool {
	switch action {
	case ActionBuy, ActionSell, ActionCashDeposit:
		return true
	}
	return false
}
