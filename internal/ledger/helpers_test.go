package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/ledger/memstore"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

var (
	testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	testKey = models.PortfolioKey{Username: "alice", Number: 1}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e models.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestService(t *testing.T, opts ...ledger.Option) (*ledger.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.AddSymbols("AAPL", "MSFT", "GOOGL", "NEW")
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return testNow })}, opts...)
	svc := ledger.NewService(store, store, store, zerolog.Nop(), opts...)
	return svc, store
}

func seedPortfolio(t *testing.T, store *memstore.Store, key models.PortfolioKey, cash, base string) {
	t.Helper()
	err := store.SavePortfolio(context.Background(), &models.Portfolio{
		Username:  key.Username,
		Number:    key.Number,
		Cash:      d(cash),
		BaseValue: d(base),
	})
	require.NoError(t, err)
}

func getPortfolio(t *testing.T, store *memstore.Store, key models.PortfolioKey) *models.Portfolio {
	t.Helper()
	p, err := store.GetPortfolio(context.Background(), key)
	require.NoError(t, err)
	return p
}

func buy(symbol string, shares, price, total string) ledger.TradeRequest {
	return ledger.TradeRequest{
		Symbol: symbol,
		Date:   testNow.Add(-time.Hour),
		Shares: d(shares),
		Price:  d(price),
		Total:  d(total),
	}
}

func positionRows(t *testing.T, store *memstore.Store, key models.PortfolioKey) []string {
	t.Helper()
	positions, err := store.ListPositions(context.Background(), key, ledger.PageRequest{})
	require.NoError(t, err)
	var rows []string
	for _, p := range positions {
		rows = append(rows, fmt.Sprintf("%s %s %s", p.Symbol, p.Shares.String(), p.AvgPrice.String()))
	}
	return rows
}

func tradeRows(t *testing.T, store *memstore.Store, key models.PortfolioKey) []string {
	t.Helper()
	trades, err := store.ListTrades(context.Background(), key, ledger.PageRequest{})
	require.NoError(t, err)
	var rows []string
	for _, tr := range trades {
		rows = append(rows, fmt.Sprintf("%s %s %s %s %s %s %s %s",
			tr.ID, tr.Date.Format(time.RFC3339), tr.Symbol, tr.Action,
			tr.Shares.String(), tr.Price.String(), tr.Total.String(), tr.Commission.String()))
	}
	return rows
}
