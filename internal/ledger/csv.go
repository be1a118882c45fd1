package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

var tradeCSVHeader = []string{"Date", "Symbol", "Action", "Shares", "Price", "Total", "Commission"}

// WriteTradesCSV writes trades in spreadsheet form. Text cells that a
// spreadsheet would evaluate are prefixed with an escape quote.
func WriteTradesCSV(w io.Writer, trades []*models.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.Date.UTC().Format(time.RFC3339),
			escapeCell(t.Symbol),
			escapeCell(t.Action),
			t.Shares.String(),
			t.Price.String(),
			t.Total.String(),
			t.Commission.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write trade %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func escapeCell(s string) string {
	if IsDangerous(s) {
		return "'" + s
	}
	return s
}
