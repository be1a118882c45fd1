package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Numeric bounds for caller supplied amounts. Decimals carry an unbounded
// exponent, so an input like 1e300000000 parses instantly but every later
// comparison has to expand it digit by digit.
const (
	MaxDecimalExponent = 18
	maxCoefficientBits = 100 // about 30 decimal digits
)

// InRange reports whether d has a bounded exponent and coefficient
func InRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > MaxDecimalExponent || exp < -MaxDecimalExponent {
		return false
	}
	return d.Coefficient().BitLen() <= maxCoefficientBits
}

type namedAmount struct {
	name  string
	value decimal.Decimal
}

// checkRange fails with ValidationError on the first out-of-range amount
func checkRange(op string, key models.PortfolioKey, symbol string, amounts ...namedAmount) error {
	for _, a := range amounts {
		if !InRange(a.value) {
			return newError(KindValidation, op, key, symbol, "%s is out of range", a.name)
		}
	}
	return nil
}
