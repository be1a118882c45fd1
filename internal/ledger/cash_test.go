package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/ledger/memstore"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func TestCashAccount(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return testNow }

	t.Run("Debit fails when amount exceeds cash", func(t *testing.T) {
		store := memstore.New()
		seedPortfolio(t, store, testKey, "100", "100")
		cash := ledger.NewCashAccount(store, clock)

		_, err := cash.Debit(ctx, testKey, d("100.01"))
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.True(t, getPortfolio(t, store, testKey).Cash.Equal(d("100")))
	})

	t.Run("Debit of the full balance succeeds", func(t *testing.T) {
		store := memstore.New()
		seedPortfolio(t, store, testKey, "100", "100")
		cash := ledger.NewCashAccount(store, clock)

		p, err := cash.Debit(ctx, testKey, d("100"))
		require.NoError(t, err)
		assert.True(t, p.Cash.IsZero())
	})

	t.Run("Debit on a missing portfolio fails", func(t *testing.T) {
		cash := ledger.NewCashAccount(memstore.New(), clock)
		_, err := cash.Debit(ctx, testKey, d("1"))
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	})

	t.Run("Deposit sets base value only on first non-zero deposit", func(t *testing.T) {
		store := memstore.New()
		cash := ledger.NewCashAccount(store, clock)

		p, err := cash.Deposit(ctx, testKey, d("500"))
		require.NoError(t, err)
		assert.True(t, p.Cash.Equal(d("500")))
		assert.True(t, p.BaseValue.Equal(d("500")))

		p, err = cash.Deposit(ctx, testKey, d("250"))
		require.NoError(t, err)
		assert.True(t, p.Cash.Equal(d("750")))
		assert.True(t, p.BaseValue.Equal(d("500")))
	})

	t.Run("Credit leaves base value alone", func(t *testing.T) {
		store := memstore.New()
		seedPortfolio(t, store, testKey, "10", "0")
		cash := ledger.NewCashAccount(store, clock)

		p, err := cash.Credit(ctx, testKey, d("90"))
		require.NoError(t, err)
		assert.True(t, p.Cash.Equal(d("100")))
		assert.True(t, p.BaseValue.IsZero())
	})

	t.Run("Reset zeroes cash and base value", func(t *testing.T) {
		store := memstore.New()
		seedPortfolio(t, store, testKey, "10", "5")
		cash := ledger.NewCashAccount(store, clock)

		p, err := cash.Reset(ctx, testKey)
		require.NoError(t, err)
		assert.True(t, p.Cash.IsZero())
		assert.True(t, p.BaseValue.IsZero())
	})
}

func TestTradeLog(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return testNow }

	newTrade := func() *models.Trade {
		return &models.Trade{
			Username:        testKey.Username,
			PortfolioNumber: testKey.Number,
			Date:            testNow,
			Symbol:          models.CashSymbol,
			Action:          models.ActionCashDeposit,
			Total:           d("1"),
		}
	}

	t.Run("Append assigns id and creation time", func(t *testing.T) {
		log := ledger.NewTradeLog(memstore.New(), clock)
		tr := newTrade()
		require.NoError(t, log.Append(ctx, tr))
		assert.NotEmpty(t, tr.ID)
		assert.Equal(t, testNow, tr.CreatedAt)
	})

	t.Run("Append rejects the 1001st trade", func(t *testing.T) {
		store := memstore.New()
		log := ledger.NewTradeLog(store, clock)
		for i := 0; i < models.MaxTrades; i++ {
			require.NoError(t, log.Append(ctx, newTrade()))
		}

		err := log.Append(ctx, newTrade())
		require.ErrorIs(t, err, ledger.ErrTradeLimitExceeded)

		count, err := store.CountTrades(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, models.MaxTrades, count)
	})

	t.Run("BulkReplace discards existing trades", func(t *testing.T) {
		store := memstore.New()
		log := ledger.NewTradeLog(store, clock)
		for i := 0; i < 3; i++ {
			require.NoError(t, log.Append(ctx, newTrade()))
		}

		require.NoError(t, log.BulkReplace(ctx, testKey, []*models.Trade{newTrade()}))
		count, err := store.CountTrades(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("BulkReplace rejects more than 1000 trades without deleting", func(t *testing.T) {
		store := memstore.New()
		log := ledger.NewTradeLog(store, clock)
		require.NoError(t, log.Append(ctx, newTrade()))

		trades := make([]*models.Trade, models.MaxTrades+1)
		for i := range trades {
			trades[i] = newTrade()
		}
		err := log.BulkReplace(ctx, testKey, trades)
		require.ErrorIs(t, err, ledger.ErrTradeLimitExceeded)

		count, err := store.CountTrades(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
