package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func TestTradesRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)

	ctx := context.Background()
	key := models.PortfolioKey{Username: "bob", Number: 0}
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	newTrade := func(day int, action, symbol string) *models.Trade {
		return &models.Trade{
			ID:              uuid.NewString(),
			Username:        key.Username,
			PortfolioNumber: key.Number,
			Date:            base.AddDate(0, 0, day),
			Symbol:          symbol,
			Action:          action,
			Shares:          decimal.NewFromInt(10),
			Price:           decimal.NewFromFloat(100.5),
			Total:           decimal.NewFromFloat(1005),
			Commission:      decimal.NewFromFloat(1.25),
			CreatedAt:       base,
		}
	}

	t.Run("InsertTrade and ListTrades newest first", func(t *testing.T) {
		testDB.TruncateAll(t)
		testDB.SeedPortfolio(t, key, "0")

		first := newTrade(0, models.ActionBuy, "AAPL")
		second := newTrade(2, models.ActionSell, "AAPL")
		third := newTrade(1, models.ActionCashDeposit, models.CashSymbol)
		for _, tr := range []*models.Trade{first, second, third} {
			require.NoError(t, testDB.InsertTrade(ctx, tr))
		}

		trades, err := testDB.ListTrades(ctx, key, ledger.PageRequest{})
		require.NoError(t, err)
		require.Len(t, trades, 3)
		assert.Equal(t, second.ID, trades[0].ID)
		assert.Equal(t, third.ID, trades[1].ID)
		assert.Equal(t, first.ID, trades[2].ID)
		assert.True(t, decimal.NewFromFloat(1.25).Equal(trades[2].Commission))
		assert.True(t, base.Equal(trades[2].Date))

		page, err := testDB.ListTrades(ctx, key, ledger.PageRequest{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, first.ID, page[0].ID)
	})

	t.Run("InsertTrade rejects duplicate ids", func(t *testing.T) {
		testDB.TruncateAll(t)
		testDB.SeedPortfolio(t, key, "0")

		tr := newTrade(0, models.ActionBuy, "AAPL")
		require.NoError(t, testDB.InsertTrade(ctx, tr))
		assert.Error(t, testDB.InsertTrade(ctx, tr))
	})

	t.Run("InsertTrade rejects unknown actions", func(t *testing.T) {
		testDB.TruncateAll(t)
		testDB.SeedPortfolio(t, key, "0")

		assert.Error(t, testDB.InsertTrade(ctx, newTrade(0, "Short", "AAPL")))
	})

	t.Run("CountTrades and DeleteTrades", func(t *testing.T) {
		testDB.TruncateAll(t)
		testDB.SeedPortfolio(t, key, "0")

		for i := 0; i < 5; i++ {
			require.NoError(t, testDB.InsertTrade(ctx, newTrade(i, models.ActionBuy, "MSFT")))
		}
		count, err := testDB.CountTrades(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 5, count)

		require.NoError(t, testDB.DeleteTrades(ctx, key))
		count, err = testDB.CountTrades(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}
