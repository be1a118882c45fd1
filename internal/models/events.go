package models

import "time"

// Ledger event types published after a committed mutation
const (
	EventTradeRecorded     = "TRADE_RECORDED"
	EventCashDeposited     = "CASH_DEPOSITED"
	EventPortfolioReset    = "PORTFOLIO_RESET"
	EventBaseValueSet      = "BASE_VALUE_SET"
	EventPortfolioImported = "PORTFOLIO_IMPORTED"
)

// EventPriceUpdated is consumed from the market data topic
const EventPriceUpdated = "PRICE_UPDATED"

// LedgerEvent is the Kafka payload describing a committed ledger mutation
type LedgerEvent struct {
	EventType       string          `json:"event_type"`
	Username        string          `json:"username"`
	PortfolioNumber int             `json:"portfolio_number"`
	Trade           *Trade          `json:"trade,omitempty"`
	Stats           *PortfolioStats `json:"stats,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PriceEvent is a daily close published by the market data service.
// Numeric fields are strings to avoid float rounding on the wire.
type PriceEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      PriceEventData `json:"data"`
}

// PriceEventData carries the OHLCV values of a PriceEvent
type PriceEventData struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
	Date   string `json:"date"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume int64  `json:"volume"`
}
