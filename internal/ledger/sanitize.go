package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// ImportRequest is untrusted bulk data, typically a round-tripped spreadsheet
type ImportRequest struct {
	Stats     map[string]any   `json:"stats"`
	Positions []map[string]any `json:"positions"`
	Trades    []map[string]any `json:"trades"`
}

// SanitizedImport is an ImportRequest that passed the sanitizer
type SanitizedImport struct {
	Cash      decimal.Decimal
	BaseValue decimal.Decimal
	// Stats holds the remaining static fields with dotted keys regrouped.
	// Server-computed fields are removed.
	Stats     map[string]any
	Positions []*models.Position
	Trades    []*models.Trade
}

// dangerousPrefixes start spreadsheet formulas
const dangerousPrefixes = "=+-@"

// derivedStatFields are computed by the projector and never imported
var derivedStatFields = map[string]bool{
	"totalValue":          true,
	"unrealizedPL":        true,
	"unrealizedPLPercent": true,
	"totalPL":             true,
	"totalPLPercent":      true,
	"positionsValue":      true,
}

var numericStatFields = map[string]bool{
	"cash":               true,
	"baseValue":          true,
	"avgHoldTimeWinners": true,
	"avgHoldTimeLosers":  true,
	"realizedPL":         true,
}

var compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})T(\d{2}):?(\d{2}):?(\d{2})(.*)$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Field aliases accepted for imported rows, first entry is canonical
var (
	symbolKeys     = []string{"symbol", "Symbol"}
	sharesKeys     = []string{"shares", "Shares"}
	avgCostKeys    = []string{"avgCost", "AvgPrice", "avgPrice"}
	dateKeys       = []string{"date", "Date"}
	actionKeys     = []string{"action", "Action"}
	priceKeys      = []string{"price", "Price"}
	totalKeys      = []string{"total", "Total"}
	commissionKeys = []string{"commission", "Commission"}
)

// ImportSanitizer validates and neutralizes bulk import data
type ImportSanitizer struct{}

// Sanitize rejects the whole request on the first dangerous value and
// otherwise returns normalized positions, trades and stats.
func (s ImportSanitizer) Sanitize(req ImportRequest) (*SanitizedImport, error) {
	if err := checkDangerous("stats", req.Stats); err != nil {
		return nil, err
	}
	for i, p := range req.Positions {
		if err := checkDangerous(fmt.Sprintf("positions[%d]", i), p); err != nil {
			return nil, err
		}
	}
	for i, t := range req.Trades {
		if err := checkDangerous(fmt.Sprintf("trades[%d]", i), t); err != nil {
			return nil, err
		}
	}

	if len(req.Positions) > models.MaxPositions {
		return nil, &Error{Kind: KindPositionLimitExceeded, Op: "import",
			Msg: fmt.Sprintf("%d positions exceed the limit of %d", len(req.Positions), models.MaxPositions)}
	}
	if len(req.Trades) > models.MaxTrades {
		return nil, &Error{Kind: KindTradeLimitExceeded, Op: "import",
			Msg: fmt.Sprintf("%d trades exceed the limit of %d", len(req.Trades), models.MaxTrades)}
	}

	out := &SanitizedImport{Stats: regroupStats(req.Stats)}
	out.Cash = ToDecimal(out.Stats["cash"])
	out.BaseValue = ToDecimal(out.Stats["baseValue"])
	if out.Cash.IsNegative() || out.BaseValue.IsNegative() {
		return nil, validationError("stats: cash and baseValue must not be negative")
	}

	seen := make(map[string]bool)
	for i, raw := range req.Positions {
		pos, err := sanitizePosition(raw)
		if err != nil {
			return nil, validationError("positions[%d]: %v", i, err)
		}
		if pos == nil {
			continue
		}
		if seen[pos.Symbol] {
			return nil, validationError("positions[%d]: duplicate symbol %s", i, pos.Symbol)
		}
		seen[pos.Symbol] = true
		out.Positions = append(out.Positions, pos)
	}

	for i, raw := range req.Trades {
		t, err := sanitizeTrade(raw)
		if err != nil {
			return nil, validationError("trades[%d]: %v", i, err)
		}
		out.Trades = append(out.Trades, t)
	}
	return out, nil
}

// IsDangerous reports whether a string would be evaluated as a formula by a
// spreadsheet, after removing one leading escape quote
func IsDangerous(s string) bool {
	s = strings.TrimPrefix(s, "'")
	return s != "" && strings.ContainsRune(dangerousPrefixes, rune(s[0]))
}

func checkDangerous(path string, v any) error {
	switch val := v.(type) {
	case string:
		if IsDangerous(val) {
			return &Error{Kind: KindDangerousValue, Op: "import",
				Msg: fmt.Sprintf("%s contains a formula-like value", path)}
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := checkDangerous(path+"."+k, val[k]); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range val {
			if err := checkDangerous(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

// regroupStats nests dotted keys and drops derived fields
func regroupStats(raw map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range raw {
		parts := strings.Split(k, ".")
		if derivedStatFields[parts[0]] {
			continue
		}
		if len(parts) == 1 {
			if nested, ok := v.(map[string]any); ok {
				mergeInto(out, k, nested)
				continue
			}
			out[k] = normalizeStatValue(k, v)
			continue
		}
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		node[leaf] = normalizeStatValue(leaf, v)
	}
	return out
}

func mergeInto(out map[string]any, key string, nested map[string]any) {
	child, ok := out[key].(map[string]any)
	if !ok {
		child = make(map[string]any)
		out[key] = child
	}
	for k, v := range nested {
		child[k] = normalizeStatValue(k, v)
	}
}

func normalizeStatValue(key string, v any) any {
	if numericStatFields[key] || key == "amount" {
		return ToDecimal(v)
	}
	return v
}

func sanitizePosition(raw map[string]any) (*models.Position, error) {
	symbol := normalizeSymbol(lookup(raw, symbolKeys))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	shares := ToDecimal(lookup(raw, sharesKeys))
	if !shares.IsPositive() {
		// closed rows carry no position
		return nil, nil
	}
	avg := ToDecimal(lookup(raw, avgCostKeys))
	if !avg.IsPositive() {
		return nil, fmt.Errorf("avgCost for %s must be positive", symbol)
	}
	return &models.Position{Symbol: symbol, Shares: shares, AvgPrice: avg}, nil
}

func sanitizeTrade(raw map[string]any) (*models.Trade, error) {
	action, err := normalizeAction(lookup(raw, actionKeys))
	if err != nil {
		return nil, err
	}
	date, err := ParseDate(lookup(raw, dateKeys))
	if err != nil {
		return nil, err
	}
	symbol := normalizeSymbol(lookup(raw, symbolKeys))
	if symbol == "" {
		if action != models.ActionCashDeposit {
			return nil, fmt.Errorf("symbol is required")
		}
		symbol = models.CashSymbol
	}

	t := &models.Trade{
		Date:       date,
		Symbol:     symbol,
		Action:     action,
		Shares:     ToDecimal(lookup(raw, sharesKeys)),
		Price:      ToDecimal(lookup(raw, priceKeys)),
		Total:      ToDecimal(lookup(raw, totalKeys)),
		Commission: ToDecimal(lookup(raw, commissionKeys)),
	}
	if t.Shares.IsNegative() || t.Price.IsNegative() || t.Total.IsNegative() {
		return nil, fmt.Errorf("shares, price and total must not be negative")
	}
	if t.Commission.IsNegative() {
		return nil, fmt.Errorf("commission must not be negative")
	}
	return t, nil
}

func lookup(raw map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v
		}
	}
	return nil
}

func normalizeSymbol(v any) string {
	s, _ := v.(string)
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(s, "'")))
}

func normalizeAction(v any) (string, error) {
	s, _ := v.(string)
	compact := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	switch compact {
	case "buy":
		return models.ActionBuy, nil
	case "sell":
		return models.ActionSell, nil
	case "cashdeposit", "deposit":
		return models.ActionCashDeposit, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// ToDecimal converts a loosely typed number. Anything unparseable or
// outside InRange is zero.
func ToDecimal(v any) decimal.Decimal {
	d := toDecimal(v)
	if !InRange(d) {
		return decimal.Zero
	}
	return d
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(n)
	case float32:
		return toDecimal(float64(n))
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(strings.TrimPrefix(n, "'")), ",", "")
		s = strings.TrimPrefix(s, "$")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// ParseDate accepts RFC 3339 and common spreadsheet forms, including the
// compact 20240105T103000Z form which is expanded before parsing
func ParseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case float64:
		return time.UnixMilli(int64(d)).UTC(), nil
	case json.Number:
		ms, err := strconv.ParseInt(d.String(), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", d.String())
		}
		return time.UnixMilli(ms).UTC(), nil
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(d, "'"))
		if m := compactDate.FindStringSubmatch(s); m != nil {
			s = fmt.Sprintf("%s-%s-%sT%s:%s:%s%s", m[1], m[2], m[3], m[4], m[5], m[6], m[7])
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date %q", d)
	case nil:
		return time.Time{}, fmt.Errorf("date is required")
	}
	return time.Time{}, fmt.Errorf("invalid date %v", v)
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: "import", Msg: fmt.Sprintf(format, args...)}
}
