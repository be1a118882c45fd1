package ledger

import (
	"errors"
	"fmt"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Kind is the stable error category surfaced to callers
type Kind string

// Error kinds
const (
	KindValidation            Kind = "ValidationError"
	KindNotFound              Kind = "NotFound"
	KindInsufficientFunds     Kind = "InsufficientFunds"
	KindInsufficientShares    Kind = "InsufficientShares"
	KindPositionLimitExceeded Kind = "PositionLimitExceeded"
	KindTradeLimitExceeded    Kind = "TradeLimitExceeded"
	KindDangerousValue        Kind = "DangerousValueDetected"
	KindFutureDatedTrade      Kind = "FutureDatedTrade"
	KindStore                 Kind = "StoreError"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares    = &Error{Kind: KindInsufficientShares}
	ErrPositionLimitExceeded = &Error{Kind: KindPositionLimitExceeded}
	ErrTradeLimitExceeded    = &Error{Kind: KindTradeLimitExceeded}
	ErrDangerousValue        = &Error{Kind: KindDangerousValue}
	ErrFutureDatedTrade      = &Error{Kind: KindFutureDatedTrade}
	ErrStore                 = &Error{Kind: KindStore}
)

// Error is a terminal ledger failure with enough context to act on
type Error struct {
	Kind      Kind
	Op        string
	Portfolio models.PortfolioKey
	Symbol    string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	prefix := e.Op
	if e.Portfolio.Username != "" {
		prefix += " " + e.Portfolio.String()
	}
	if e.Symbol != "" {
		prefix += " " + e.Symbol
	}
	if prefix == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of a ledger error, or StoreError for anything else
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindStore
}

func newError(kind Kind, op string, key models.PortfolioKey, symbol, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Portfolio: key,
		Symbol:    symbol,
		Msg:       fmt.Sprintf(format, args...),
	}
}

// storeError wraps a collaborator failure. Ledger errors pass through untouched
// and models.ErrNotFound becomes NotFound.
func storeError(op string, key models.PortfolioKey, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	kind := KindStore
	if errors.Is(err, models.ErrNotFound) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Portfolio: key, Err: err}
}
