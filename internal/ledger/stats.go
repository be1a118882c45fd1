package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// returnBuckets are the upper bounds (exclusive) of the trade-return histogram
var returnBuckets = []struct {
	label string
	upper decimal.Decimal
}{
	{"<-20%", decimal.NewFromInt(-20)},
	{"-20%..-10%", decimal.NewFromInt(-10)},
	{"-10%..0%", decimal.Zero},
	{"0%..10%", decimal.NewFromInt(10)},
	{"10%..20%", decimal.NewFromInt(20)},
}

const topBucketLabel = ">=20%"

// Projection is the output of one stats projection
type Projection struct {
	Stats      models.PortfolioStats
	Valuations []models.PositionValuation
	Allocation []models.AllocationSlice
}

// StatsProjector derives statistics from authoritative ledger state and quotes
type StatsProjector struct{}

// Project is a pure function of its inputs. Positions without a quote are
// valued at their average cost and flagged.
func (StatsProjector) Project(p *models.Portfolio, positions []*models.Position, trades []*models.Trade, quotes map[string]decimal.Decimal, now time.Time) Projection {
	valuations := Valuate(positions, quotes)

	positionsValue := decimal.Zero
	unrealized := decimal.Zero
	for _, v := range valuations {
		positionsValue = positionsValue.Add(v.Value)
		unrealized = unrealized.Add(v.UnrealizedPL)
	}
	totalValue := p.Cash.Add(positionsValue)
	totalPL := totalValue.Sub(p.BaseValue)

	stats := models.PortfolioStats{
		TotalValue:          totalValue,
		PositionsValue:      positionsValue,
		UnrealizedPL:        unrealized,
		UnrealizedPLPercent: percentOf(unrealized, p.BaseValue),
		TotalPL:             totalPL,
		TotalPLPercent:      percentOf(totalPL, p.BaseValue),
		ProjectedAt:         now,
	}
	applyRealized(&stats, trades)

	return Projection{
		Stats:      stats,
		Valuations: valuations,
		Allocation: Allocation(p.Cash, valuations),
	}
}

// Valuate joins positions with quotes, sorted by symbol
func Valuate(positions []*models.Position, quotes map[string]decimal.Decimal) []models.PositionValuation {
	out := make([]models.PositionValuation, 0, len(positions))
	for _, pos := range positions {
		quote, ok := quotes[pos.Symbol]
		if !ok {
			quote = pos.AvgPrice
		}
		v := models.PositionValuation{
			Symbol:       pos.Symbol,
			Shares:       pos.Shares,
			AvgCost:      pos.AvgPrice,
			Quote:        quote,
			QuoteMissing: !ok,
			Value:        pos.Shares.Mul(quote),
			UnrealizedPL: quote.Sub(pos.AvgPrice).Mul(pos.Shares),
		}
		if !pos.AvgPrice.IsZero() {
			v.UnrealizedPLPercent = quote.Sub(pos.AvgPrice).Div(pos.AvgPrice).Mul(hundred).Round(2)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Allocation builds pie chart slices, with cash as a CASH slice when positive
func Allocation(cash decimal.Decimal, valuations []models.PositionValuation) []models.AllocationSlice {
	total := decimal.Zero
	slices := make([]models.AllocationSlice, 0, len(valuations)+1)
	for _, v := range valuations {
		slices = append(slices, models.AllocationSlice{Label: v.Symbol, Value: v.Value})
		total = total.Add(v.Value)
	}
	if cash.IsPositive() {
		slices = append(slices, models.AllocationSlice{Label: models.CashSymbol, Value: cash})
		total = total.Add(cash)
	}
	if total.IsPositive() {
		for i := range slices {
			slices[i].Percent = slices[i].Value.Div(total).Mul(hundred).Round(2)
		}
	}
	return slices
}

// percentOf returns value/base in percent, or nil while base is unset
func percentOf(value, base decimal.Decimal) *decimal.Decimal {
	if base.IsZero() {
		return nil
	}
	pct := value.Div(base).Mul(hundred).Round(2)
	return &pct
}

type replayHolding struct {
	shares   decimal.Decimal
	avg      decimal.Decimal
	openedAt time.Time
}

// applyRealized replays the trade log in date order with weighted-average
// cost and scores every sale against the cost basis at that moment.
func applyRealized(stats *models.PortfolioStats, trades []*models.Trade) {
	// trades arrive newest first; reversing keeps full ties in insertion order
	ordered := make([]*models.Trade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		ordered = append(ordered, trades[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Date.Before(ordered[j].Date)
	})

	counts := make([]int, len(returnBuckets)+1)
	holdings := make(map[string]*replayHolding)
	realized := decimal.Zero
	winDays, lossDays := decimal.Zero, decimal.Zero

	for _, t := range ordered {
		switch t.Action {
		case models.ActionBuy:
			h, ok := holdings[t.Symbol]
			if !ok || h.shares.IsZero() {
				h = &replayHolding{openedAt: t.Date}
				holdings[t.Symbol] = h
			}
			h.avg = WeightedAverage(h.avg, h.shares, t.Price, t.Shares)
			h.shares = h.shares.Add(t.Shares)
		case models.ActionSell:
			h, ok := holdings[t.Symbol]
			if !ok || !h.shares.IsPositive() {
				continue
			}
			sold := decimal.Min(t.Shares, h.shares)
			cost := h.avg.Mul(sold)
			amount := t.Total.Sub(cost)
			if !t.Shares.Equal(sold) && !t.Shares.IsZero() {
				amount = t.Total.Mul(sold).Div(t.Shares).Sub(cost)
			}
			realized = realized.Add(amount)
			days := decimal.NewFromFloat(t.Date.Sub(h.openedAt).Hours() / 24)

			switch {
			case amount.IsPositive():
				stats.Wins++
				winDays = winDays.Add(days)
				if stats.BiggestWinner == nil || amount.GreaterThan(stats.BiggestWinner.Amount) {
					stats.BiggestWinner = &models.TradeOutcome{Symbol: t.Symbol, Amount: amount}
				}
			case amount.IsNegative():
				stats.Losses++
				lossDays = lossDays.Add(days)
				if stats.BiggestLoser == nil || amount.LessThan(stats.BiggestLoser.Amount) {
					stats.BiggestLoser = &models.TradeOutcome{Symbol: t.Symbol, Amount: amount}
				}
			}
			if cost.IsPositive() {
				counts[bucketFor(amount.Div(cost).Mul(hundred))]++
			}

			h.shares = h.shares.Sub(sold)
		}
	}

	stats.RealizedPL = realized
	if stats.Wins > 0 {
		stats.AvgHoldTimeWinners = winDays.Div(decimal.NewFromInt(int64(stats.Wins))).Round(2)
	}
	if stats.Losses > 0 {
		stats.AvgHoldTimeLosers = lossDays.Div(decimal.NewFromInt(int64(stats.Losses))).Round(2)
	}
	stats.ReturnDistribution = make([]models.DistributionBucket, 0, len(counts))
	for i, b := range returnBuckets {
		stats.ReturnDistribution = append(stats.ReturnDistribution, models.DistributionBucket{Label: b.label, Count: counts[i]})
	}
	stats.ReturnDistribution = append(stats.ReturnDistribution, models.DistributionBucket{Label: topBucketLabel, Count: counts[len(returnBuckets)]})
}

func bucketFor(pct decimal.Decimal) int {
	for i, b := range returnBuckets {
		if pct.LessThan(b.upper) {
			return i
		}
	}
	return len(returnBuckets)
}
