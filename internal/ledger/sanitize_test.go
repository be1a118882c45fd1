package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func TestIsDangerous(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"=1+1", true},
		{"+cmd", true},
		{"-2", true},
		{"@SUM(A1:A2)", true},
		{"'=1+1", true},
		{"AAPL", false},
		{"'AAPL", false},
		{"", false},
		{"'", false},
		{"a=b", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.IsDangerous(tt.in))
		})
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"float", 12.5, "12.5"},
		{"int", 7, "7"},
		{"json number", json.Number("3.25"), "3.25"},
		{"string", "1,234.50", "1234.5"},
		{"dollar", "$99", "99"},
		{"escaped", "'42", "42"},
		{"garbage", "abc", "0"},
		{"nil", nil, "0"},
		{"bool", true, "0"},
		{"huge exponent", "1e300000000", "0"},
		{"tiny exponent", "1e-300000000", "0"},
		{"huge float", 1e300, "0"},
		{"long coefficient", "1234567890123456789012345678901234567890", "0"},
		{"exponent within bounds", "2.5e3", "2500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.ToDecimal(tt.in)
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC)

	t.Run("compact", func(t *testing.T) {
		got, err := ledger.ParseDate("20240105T103000Z")
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("compact with colons and offset", func(t *testing.T) {
		got, err := ledger.ParseDate("20240105T12:30:00+02:00")
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("rfc3339", func(t *testing.T) {
		got, err := ledger.ParseDate("2024-01-05T10:30:00Z")
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("date only", func(t *testing.T) {
		got, err := ledger.ParseDate("2024-01-05")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("unix millis", func(t *testing.T) {
		got, err := ledger.ParseDate(float64(want.UnixMilli()))
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ledger.ParseDate("next tuesday")
		assert.Error(t, err)
		_, err = ledger.ParseDate(nil)
		assert.Error(t, err)
	})
}

func TestImportSanitizer(t *testing.T) {
	var s ledger.ImportSanitizer

	t.Run("reports the path of a dangerous value", func(t *testing.T) {
		_, err := s.Sanitize(ledger.ImportRequest{
			Trades: []map[string]any{
				{"date": "2024-01-01", "symbol": "AAPL", "action": "Buy"},
				{"date": "2024-01-01", "symbol": "MSFT", "action": "Buy", "notes": []any{"ok", "=EVIL()"}},
			},
		})
		require.ErrorIs(t, err, ledger.ErrDangerousValue)
		assert.Contains(t, err.Error(), "trades[1].notes[1]")
	})

	t.Run("nested stats are scanned", func(t *testing.T) {
		_, err := s.Sanitize(ledger.ImportRequest{
			Stats: map[string]any{"biggestLoser": map[string]any{"symbol": "+X"}},
		})
		assert.ErrorIs(t, err, ledger.ErrDangerousValue)
	})

	t.Run("too many rows", func(t *testing.T) {
		req := ledger.ImportRequest{Positions: make([]map[string]any, models.MaxPositions+1)}
		_, err := s.Sanitize(req)
		assert.ErrorIs(t, err, ledger.ErrPositionLimitExceeded)

		req = ledger.ImportRequest{Trades: make([]map[string]any, models.MaxTrades+1)}
		_, err = s.Sanitize(req)
		assert.ErrorIs(t, err, ledger.ErrTradeLimitExceeded)
	})

	t.Run("negative cash", func(t *testing.T) {
		_, err := s.Sanitize(ledger.ImportRequest{Stats: map[string]any{"cash": -1.0}})
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})

	t.Run("positions keep only whitelisted fields", func(t *testing.T) {
		out, err := s.Sanitize(ledger.ImportRequest{
			Positions: []map[string]any{
				{"symbol": "'aapl", "shares": "10", "avgCost": "$150.25", "currentPrice": 999.0},
				{"symbol": "MSFT", "shares": 0.0, "avgCost": 10.0},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Positions, 1)
		p := out.Positions[0]
		assert.Equal(t, "AAPL", p.Symbol)
		assert.True(t, p.Shares.Equal(d("10")))
		assert.True(t, p.AvgPrice.Equal(d("150.25")))
	})

	t.Run("position errors", func(t *testing.T) {
		_, err := s.Sanitize(ledger.ImportRequest{
			Positions: []map[string]any{{"symbol": "AAPL", "shares": 1.0}},
		})
		assert.ErrorIs(t, err, ledger.ErrValidation)

		_, err = s.Sanitize(ledger.ImportRequest{
			Positions: []map[string]any{
				{"symbol": "AAPL", "shares": 1.0, "avgCost": 1.0},
				{"symbol": "aapl", "shares": 2.0, "avgCost": 1.0},
			},
		})
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})

	t.Run("trades", func(t *testing.T) {
		out, err := s.Sanitize(ledger.ImportRequest{
			Trades: []map[string]any{
				{"date": "2024-01-05", "action": "Deposit", "total": 500.0},
				{"Date": "2024-01-06", "Symbol": "aapl", "Action": "SELL", "Shares": 1.0, "Price": 10.0, "Total": 10.0},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.Trades, 2)
		assert.Equal(t, models.ActionCashDeposit, out.Trades[0].Action)
		assert.Equal(t, models.CashSymbol, out.Trades[0].Symbol)
		assert.Equal(t, models.ActionSell, out.Trades[1].Action)
		assert.Equal(t, "AAPL", out.Trades[1].Symbol)
	})

	t.Run("trade errors", func(t *testing.T) {
		bad := []map[string]any{
			{"date": "2024-01-05", "symbol": "AAPL", "action": "Short"},
			{"symbol": "AAPL", "action": "Buy"},
			{"date": "2024-01-05", "action": "Buy"},
			{"date": "2024-01-05", "symbol": "AAPL", "action": "Buy", "shares": -1.0},
		}
		for _, row := range bad {
			_, err := s.Sanitize(ledger.ImportRequest{Trades: []map[string]any{row}})
			assert.ErrorIs(t, err, ledger.ErrValidation, "%v", row)
		}
	})

	t.Run("stats regrouped", func(t *testing.T) {
		out, err := s.Sanitize(ledger.ImportRequest{
			Stats: map[string]any{
				"cash":                "100",
				"baseValue":           200.0,
				"totalPL":             5.0,
				"biggestLoser.symbol": "TSLA",
				"biggestLoser.amount": -12.5,
				"avgHoldTimeLosers":   "3.5",
			},
		})
		require.NoError(t, err)
		assert.True(t, out.Cash.Equal(d("100")))
		assert.True(t, out.BaseValue.Equal(d("200")))
		assert.NotContains(t, out.Stats, "totalPL")
		loser := out.Stats["biggestLoser"].(map[string]any)
		assert.Equal(t, "TSLA", loser["symbol"])
		assert.Equal(t, "-12.5", ledger.ToDecimal(loser["amount"]).String())
		assert.Equal(t, "3.5", ledger.ToDecimal(out.Stats["avgHoldTimeLosers"]).String())
	})
}
