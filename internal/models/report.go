package models

import "github.com/shopspring/decimal"

// PortfolioSummary is the read-only valuation returned by summarize
type PortfolioSummary struct {
	Username            string              `json:"Username"`
	Number              int                 `json:"Number"`
	Cash                decimal.Decimal     `json:"cash"`
	BaseValue           decimal.Decimal     `json:"BaseValue"`
	TotalValue          decimal.Decimal     `json:"totalValue"`
	PositionsValue      decimal.Decimal     `json:"positionsValue"`
	UnrealizedPL        decimal.Decimal     `json:"unrealizedPL"`
	UnrealizedPLPercent *decimal.Decimal    `json:"unrealizedPLPercent"`
	TotalPL             decimal.Decimal     `json:"totalPL"`
	TotalPLPercent      *decimal.Decimal    `json:"totalPLPercent"`
	Positions           []PositionValuation `json:"positions"`
	Allocation          []AllocationSlice   `json:"allocation"`
}

// AllocationSlice is one pie chart segment. Cash appears with label CASH.
type AllocationSlice struct {
	Label   string          `json:"label"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// PortfolioExport is the full dump returned by exportPortfolio
type PortfolioExport struct {
	Portfolio    Portfolio           `json:"portfolio"`
	TotalValue   decimal.Decimal     `json:"totalValue"`
	UnrealizedPL decimal.Decimal     `json:"unrealizedPL"`
	Positions    []PositionValuation `json:"positions"`
	Trades       []*Trade            `json:"trades"`
}

// PortfolioHistory is the charting view of the stats projection
type PortfolioHistory struct {
	Values       []ValuePoint         `json:"values"`
	Distribution []DistributionBucket `json:"distribution"`
}

// Page is one page of a paginated listing
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}
