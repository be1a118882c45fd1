package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio limits
const (
	MinPortfolioNumber = 0
	MaxPortfolioNumber = 9
	MaxPositions       = 500
	MaxTrades          = 1000
)

// ErrNotFound is returned by the storage layer when a record does not exist
var ErrNotFound = errors.New("not found")

// PortfolioKey identifies one portfolio slot of one owner
type PortfolioKey struct {
	Username string `json:"Username"`
	Number   int    `json:"Number"`
}

func (k PortfolioKey) String() string {
	return fmt.Sprintf("%s/%d", k.Username, k.Number)
}

// Portfolio holds the authoritative cash fields plus the last projected statistics
type Portfolio struct {
	Username  string          `json:"Username"`
	Number    int             `json:"Number"`
	Cash      decimal.Decimal `json:"cash"`
	BaseValue decimal.Decimal `json:"BaseValue"`
	Stats     PortfolioStats  `json:"stats"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Key returns the portfolio's identity
func (p *Portfolio) Key() PortfolioKey {
	return PortfolioKey{Username: p.Username, Number: p.Number}
}

// PortfolioStats is the derived summary written back by the stats projector.
// It is never accepted from clients.
type PortfolioStats struct {
	TotalValue          decimal.Decimal      `json:"totalValue"`
	PositionsValue      decimal.Decimal      `json:"positionsValue"`
	UnrealizedPL        decimal.Decimal      `json:"unrealizedPL"`
	UnrealizedPLPercent *decimal.Decimal     `json:"unrealizedPLPercent"`
	TotalPL             decimal.Decimal      `json:"totalPL"`
	TotalPLPercent      *decimal.Decimal     `json:"totalPLPercent"`
	RealizedPL          decimal.Decimal      `json:"realizedPL"`
	Wins                int                  `json:"wins"`
	Losses              int                  `json:"losses"`
	BiggestWinner       *TradeOutcome        `json:"biggestWinner,omitempty"`
	BiggestLoser        *TradeOutcome        `json:"biggestLoser,omitempty"`
	AvgHoldTimeWinners  decimal.Decimal      `json:"avgHoldTimeWinners"`
	AvgHoldTimeLosers   decimal.Decimal      `json:"avgHoldTimeLosers"`
	ReturnDistribution  []DistributionBucket `json:"returnDistribution"`
	ProjectedAt         time.Time            `json:"projectedAt"`
}

// TradeOutcome names the symbol and realized amount of a closed sale
type TradeOutcome struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// DistributionBucket counts realized sale returns within a percentage range
type DistributionBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ValuePoint is one sample of the portfolio value time series
type ValuePoint struct {
	Date       time.Time       `json:"date"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Cash       decimal.Decimal `json:"cash"`
}
