package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func day(n int) time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

func trade(date time.Time, action, symbol, shares, price, total string) *models.Trade {
	return &models.Trade{
		Date:   date,
		Action: action,
		Symbol: symbol,
		Shares: d(shares),
		Price:  d(price),
		Total:  d(total),
	}
}

func TestStatsProjector_Totals(t *testing.T) {
	var proj ledger.StatsProjector
	p := &models.Portfolio{Username: "alice", Number: 1, Cash: d("500"), BaseValue: d("1000")}
	positions := []*models.Position{
		{Symbol: "MSFT", Shares: d("2"), AvgPrice: d("100")},
		{Symbol: "AAPL", Shares: d("3"), AvgPrice: d("100")},
	}
	quotes := map[string]decimal.Decimal{"AAPL": d("120")}

	out := proj.Project(p, positions, nil, quotes, testNow)

	// 500 + 3*120 + 2*100 at cost
	assert.True(t, out.Stats.TotalValue.Equal(d("1060")))
	assert.True(t, out.Stats.PositionsValue.Equal(d("560")))
	assert.True(t, out.Stats.UnrealizedPL.Equal(d("60")))
	require.NotNil(t, out.Stats.UnrealizedPLPercent)
	assert.True(t, out.Stats.UnrealizedPLPercent.Equal(d("6")))
	assert.True(t, out.Stats.TotalPL.Equal(d("60")))
	assert.Equal(t, testNow, out.Stats.ProjectedAt)

	require.Len(t, out.Valuations, 2)
	assert.Equal(t, "AAPL", out.Valuations[0].Symbol)
	assert.False(t, out.Valuations[0].QuoteMissing)
	assert.True(t, out.Valuations[0].UnrealizedPLPercent.Equal(d("20")))
	assert.True(t, out.Valuations[1].QuoteMissing)
	assert.True(t, out.Valuations[1].Value.Equal(d("200")))

	require.Len(t, out.Allocation, 3)
	assert.Equal(t, models.CashSymbol, out.Allocation[2].Label)
	assert.True(t, out.Allocation[2].Percent.Equal(d("47.17")), out.Allocation[2].Percent.String())
}

func TestStatsProjector_NoBaseValue(t *testing.T) {
	var proj ledger.StatsProjector
	p := &models.Portfolio{Cash: decimal.Zero}

	out := proj.Project(p, nil, nil, nil, testNow)

	assert.True(t, out.Stats.TotalValue.IsZero())
	assert.Nil(t, out.Stats.TotalPLPercent)
	assert.Nil(t, out.Stats.UnrealizedPLPercent)
	assert.Empty(t, out.Allocation)
	assert.Len(t, out.Stats.ReturnDistribution, 6)
}

func TestStatsProjector_RealizedReplay(t *testing.T) {
	var proj ledger.StatsProjector
	p := &models.Portfolio{Cash: d("1050"), BaseValue: d("1000")}
	trades := []*models.Trade{
		// deliberately out of order; the replay sorts by date
		trade(day(21), models.ActionSell, "AAPL", "5", "90", "450"),
		trade(day(1), models.ActionBuy, "AAPL", "10", "100", "1000"),
		trade(day(11), models.ActionSell, "AAPL", "5", "120", "600"),
		trade(day(1), models.ActionCashDeposit, models.CashSymbol, "0", "0", "1000"),
	}

	out := proj.Project(p, nil, trades, nil, testNow)
	s := out.Stats

	assert.True(t, s.RealizedPL.Equal(d("50")))
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	require.NotNil(t, s.BiggestWinner)
	assert.True(t, s.BiggestWinner.Amount.Equal(d("100")))
	require.NotNil(t, s.BiggestLoser)
	assert.True(t, s.BiggestLoser.Amount.Equal(d("-50")))
	assert.True(t, s.AvgHoldTimeWinners.Equal(d("10")))
	assert.True(t, s.AvgHoldTimeLosers.Equal(d("20")))

	counts := map[string]int{}
	for _, b := range s.ReturnDistribution {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, map[string]int{
		"<-20%":      0,
		"-20%..-10%": 0,
		"-10%..0%":   1,
		"0%..10%":    0,
		"10%..20%":   0,
		">=20%":      1,
	}, counts)
}

func TestStatsProjector_SameDayRoundTripUsesCreationOrder(t *testing.T) {
	var proj ledger.StatsProjector
	p := &models.Portfolio{Cash: d("1200"), BaseValue: d("1000")}
	buyTrade := trade(day(1), models.ActionBuy, "AAPL", "10", "100", "1000")
	buyTrade.CreatedAt = testNow
	sellTrade := trade(day(1), models.ActionSell, "AAPL", "10", "120", "1200")
	sellTrade.CreatedAt = testNow.Add(time.Microsecond)

	// stores return the newest trade first
	out := proj.Project(p, nil, []*models.Trade{sellTrade, buyTrade}, nil, testNow)

	assert.Equal(t, 1, out.Stats.Wins)
	assert.True(t, out.Stats.RealizedPL.Equal(d("200")), out.Stats.RealizedPL.String())
}

func TestStatsProjector_OversoldSaleIsProrated(t *testing.T) {
	var proj ledger.StatsProjector
	trades := []*models.Trade{
		trade(day(1), models.ActionBuy, "MSFT", "2", "50", "100"),
		trade(day(2), models.ActionSell, "MSFT", "4", "60", "240"),
	}

	out := proj.Project(&models.Portfolio{}, nil, trades, nil, testNow)

	// only 2 of the 4 shares were held: 240*2/4 - 100
	assert.True(t, out.Stats.RealizedPL.Equal(d("20")))
	assert.Equal(t, 1, out.Stats.Wins)
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name                          string
		oldAvg, oldShares, price, qty string
		want                          string
	}{
		{"first lot", "0", "0", "100", "10", "100"},
		{"equal lots", "100", "10", "120", "10", "110"},
		{"uneven lots", "100", "30", "200", "10", "125"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.WeightedAverage(d(tt.oldAvg), d(tt.oldShares), d(tt.price), d(tt.qty))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}
