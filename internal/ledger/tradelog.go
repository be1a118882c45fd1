package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// TradeLog is the per-portfolio trade history
type TradeLog struct {
	repo Repository
	now  func() time.Time
}

// NewTradeLog binds a TradeLog to a repository
func NewTradeLog(repo Repository, now func() time.Time) *TradeLog {
	return &TradeLog{repo: repo, now: now}
}

// Append records one trade, failing once the portfolio holds MaxTrades
func (l *TradeLog) Append(ctx context.Context, t *models.Trade) error {
	key := t.Key()
	count, err := l.repo.CountTrades(ctx, key)
	if err != nil {
		return storeError("count trades", key, err)
	}
	if count >= models.MaxTrades {
		return newError(KindTradeLimitExceeded, "append trade", key, t.Symbol,
			"portfolio already has %d trades", count)
	}
	return l.insert(ctx, t)
}

// BulkReplace discards the portfolio's trades and inserts the given set
func (l *TradeLog) BulkReplace(ctx context.Context, key models.PortfolioKey, trades []*models.Trade) error {
	if len(trades) > models.MaxTrades {
		return newError(KindTradeLimitExceeded, "import", key, "",
			"%d trades exceed the limit of %d", len(trades), models.MaxTrades)
	}
	if err := l.Clear(ctx, key); err != nil {
		return err
	}
	// rows sharing a date keep their import order through created_at
	base := l.now().UTC().Truncate(time.Microsecond)
	for i, t := range trades {
		t.Username = key.Username
		t.PortfolioNumber = key.Number
		t.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		if err := l.insert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every trade of the portfolio
func (l *TradeLog) Clear(ctx context.Context, key models.PortfolioKey) error {
	return storeError("delete trades", key, l.repo.DeleteTrades(ctx, key))
}

func (l *TradeLog) insert(ctx context.Context, t *models.Trade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.now()
	}
	return storeError("insert trade", t.Key(), l.repo.InsertTrade(ctx, t))
}
