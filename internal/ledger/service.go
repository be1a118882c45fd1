package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Pagination caps
const (
	MaxTradesPageSize    = 500
	MaxPositionsPageSize = 100
	DefaultPageSize      = 50
	historyLimit         = 365
)

// importNamespace seeds name-based IDs so re-importing yields the same trades
var importNamespace = uuid.MustParse("5b0c3f0e-8a53-4a57-9d0f-3c1e0f6b2a71")

// TradeRequest is a buy or sell submitted by the caller
type TradeRequest struct {
	Symbol     string          `json:"symbol"`
	Date       time.Time       `json:"date"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	Commission decimal.Decimal `json:"commission"`
}

// Service orchestrates cash, positions, trades and statistics.
//
// Every mutation runs inside Store.WithTx, so cash, positions and trades
// commit together or not at all. Mutations of the same portfolio are
// serialized by an in-process KeyedMutex and by the store's row lock;
// callers sharing a database from several processes rely on the latter.
type Service struct {
	store     Store
	catalog   AssetCatalog
	quotes    QuoteSource
	publisher EventPublisher
	locks     *KeyedMutex
	projector StatsProjector
	sanitizer ImportSanitizer
	now       func() time.Time
	log       zerolog.Logger
}

// Option customizes a Service
type Option func(*Service)

// WithPublisher publishes ledger events after each committed mutation
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service
func NewService(store Store, catalog AssetCatalog, quotes QuoteSource, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		quotes:  quotes,
		locks:   NewKeyedMutex(),
		now:     time.Now,
		log:     log.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordBuy debits cash, appends the trade and grows the position
func (s *Service) RecordBuy(ctx context.Context, key models.PortfolioKey, req TradeRequest) (*models.Trade, error) {
	const op = "record buy"
	trade, err := s.prepareTrade(ctx, op, key, req, models.ActionBuy)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var stats models.PortfolioStats
	err = s.store.WithTx(ctx, func(repo Repository) error {
		if _, err := NewCashAccount(repo, s.now).Debit(ctx, key, trade.Total); err != nil {
			return err
		}
		if err := NewTradeLog(repo, s.now).Append(ctx, trade); err != nil {
			return err
		}
		if _, err := NewPositionBook(repo, s.now).ApplyBuy(ctx, key, trade.Symbol, trade.Shares, trade.Price); err != nil {
			return err
		}
		stats, err = s.recompute(ctx, repo, key)
		return err
	})
	if err != nil {
		return nil, s.fail(op, key, trade.Symbol, err)
	}

	s.log.Info().Str("portfolio", key.String()).Str("symbol", trade.Symbol).
		Str("shares", trade.Shares.String()).Str("total", trade.Total.String()).Msg("Recorded buy")
	s.publish(ctx, models.EventTradeRecorded, key, trade, &stats)
	return trade, nil
}

// RecordSell checks the position, appends the trade, shrinks the position
// and credits the proceeds
func (s *Service) RecordSell(ctx context.Context, key models.PortfolioKey, req TradeRequest) (*models.Trade, error) {
	const op = "record sell"
	trade, err := s.prepareTrade(ctx, op, key, req, models.ActionSell)
	if err != nil {
		return nil, err
	}
	if trade.Date.After(s.now()) {
		return nil, newError(KindFutureDatedTrade, op, key, trade.Symbol,
			"trade date %s is in the future", trade.Date.Format(time.RFC3339))
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var stats models.PortfolioStats
	err = s.store.WithTx(ctx, func(repo Repository) error {
		// lock the portfolio row before reading the position
		if _, err := NewCashAccount(repo, s.now).Load(ctx, key); err != nil {
			return err
		}
		book := NewPositionBook(repo, s.now)
		if _, err := book.CheckSell(ctx, key, trade.Symbol, trade.Shares); err != nil {
			return err
		}
		if err := NewTradeLog(repo, s.now).Append(ctx, trade); err != nil {
			return err
		}
		if _, err := book.ApplySell(ctx, key, trade.Symbol, trade.Shares); err != nil {
			return err
		}
		if _, err := NewCashAccount(repo, s.now).Credit(ctx, key, trade.Total); err != nil {
			return err
		}
		stats, err = s.recompute(ctx, repo, key)
		return err
	})
	if err != nil {
		return nil, s.fail(op, key, trade.Symbol, err)
	}

	s.log.Info().Str("portfolio", key.String()).Str("symbol", trade.Symbol).
		Str("shares", trade.Shares.String()).Str("total", trade.Total.String()).Msg("Recorded sell")
	s.publish(ctx, models.EventTradeRecorded, key, trade, &stats)
	return trade, nil
}

// DepositCash credits cash and records a CashDeposit trade dated now unless
// a date is given
func (s *Service) DepositCash(ctx context.Context, key models.PortfolioKey, amount decimal.Decimal, date *time.Time) (*models.Trade, error) {
	const op = "deposit cash"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, newError(KindValidation, op, key, "", "amount must be positive")
	}
	if err := checkRange(op, key, "", namedAmount{"amount", amount}); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		Username:        key.Username,
		PortfolioNumber: key.Number,
		Date:            s.now(),
		Symbol:          models.CashSymbol,
		Action:          models.ActionCashDeposit,
		Shares:          decimal.Zero,
		Price:           decimal.Zero,
		Total:           amount,
		Commission:      decimal.Zero,
	}
	if date != nil && !date.IsZero() {
		trade.Date = *date
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var stats models.PortfolioStats
	err := s.store.WithTx(ctx, func(repo Repository) error {
		if _, err := NewCashAccount(repo, s.now).Deposit(ctx, key, amount); err != nil {
			return err
		}
		if err := NewTradeLog(repo, s.now).Append(ctx, trade); err != nil {
			return err
		}
		var err error
		stats, err = s.recompute(ctx, repo, key)
		return err
	})
	if err != nil {
		return nil, s.fail(op, key, "", err)
	}

	s.log.Info().Str("portfolio", key.String()).Str("amount", amount.String()).Msg("Deposited cash")
	s.publish(ctx, models.EventCashDeposited, key, trade, &stats)
	return trade, nil
}

// ResetPortfolio deletes positions and trades and zeroes cash and base value
func (s *Service) ResetPortfolio(ctx context.Context, key models.PortfolioKey) error {
	const op = "reset portfolio"
	if err := validateKey(op, key); err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var stats models.PortfolioStats
	err := s.store.WithTx(ctx, func(repo Repository) error {
		cash := NewCashAccount(repo, s.now)
		if _, err := cash.Load(ctx, key); err != nil {
			return err
		}
		if err := NewPositionBook(repo, s.now).Reset(ctx, key); err != nil {
			return err
		}
		if err := NewTradeLog(repo, s.now).Clear(ctx, key); err != nil {
			return err
		}
		if _, err := cash.Reset(ctx, key); err != nil {
			return err
		}
		var err error
		stats, err = s.recompute(ctx, repo, key)
		return err
	})
	if err != nil {
		return s.fail(op, key, "", err)
	}

	s.log.Info().Str("portfolio", key.String()).Msg("Reset portfolio")
	s.publish(ctx, models.EventPortfolioReset, key, nil, &stats)
	return nil
}

// SetBaseValue overwrites the base value of an existing portfolio
func (s *Service) SetBaseValue(ctx context.Context, key models.PortfolioKey, value decimal.Decimal) error {
	const op = "set base value"
	if err := validateKey(op, key); err != nil {
		return err
	}
	if value.IsNegative() {
		return newError(KindValidation, op, key, "", "base value must not be negative")
	}
	if err := checkRange(op, key, "", namedAmount{"base value", value}); err != nil {
		return err
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var stats models.PortfolioStats
	err := s.store.WithTx(ctx, func(repo Repository) error {
		p, err := repo.GetPortfolio(ctx, key)
		if err != nil {
			return storeError(op, key, err)
		}
		p.BaseValue = value
		p.UpdatedAt = s.now()
		if err := repo.SavePortfolio(ctx, p); err != nil {
			return storeError(op, key, err)
		}
		stats, err = s.recompute(ctx, repo, key)
		return err
	})
	if err != nil {
		return s.fail(op, key, "", err)
	}

	s.log.Info().Str("portfolio", key.String()).Str("base_value", value.String()).Msg("Set base value")
	s.publish(ctx, models.EventBaseValueSet, key, nil, &stats)
	return nil
}

// ImportPortfolio sanitizes the request and fully replaces positions, trades,
// cash and base value
func (s *Service) ImportPortfolio(ctx context.Context, key models.PortfolioKey, req ImportRequest) (*SanitizedImport, error) {
	const op = "import portfolio"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	clean, err := s.sanitizer.Sanitize(req)
	if err != nil {
		return nil, s.fail(op, key, "", err)
	}
	for i, t := range clean.Trades {
		t.Username = key.Username
		t.PortfolioNumber = key.Number
		t.ID = importedTradeID(key, i, t)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	var stats models.PortfolioStats
	err = s.store.WithTx(ctx, func(repo Repository) error {
		// the portfolio row must exist before positions and trades reference it
		if _, err := NewCashAccount(repo, s.now).Set(ctx, key, clean.Cash, clean.BaseValue); err != nil {
			return err
		}
		if err := NewPositionBook(repo, s.now).Replace(ctx, key, clean.Positions); err != nil {
			return err
		}
		if err := NewTradeLog(repo, s.now).BulkReplace(ctx, key, clean.Trades); err != nil {
			return err
		}
		var err error
		stats, err = s.recompute(ctx, repo, key)
		return err
	})
	if err != nil {
		return nil, s.fail(op, key, "", err)
	}

	s.log.Info().Str("portfolio", key.String()).
		Int("positions", len(clean.Positions)).Int("trades", len(clean.Trades)).Msg("Imported portfolio")
	s.publish(ctx, models.EventPortfolioImported, key, nil, &stats)
	return clean, nil
}

// ExportPortfolio returns the portfolio, valued positions and trade history
// newest first
func (s *Service) ExportPortfolio(ctx context.Context, key models.PortfolioKey) (*models.PortfolioExport, error) {
	const op = "export portfolio"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	p, err := s.store.GetPortfolio(ctx, key)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	positions, err := s.store.ListPositions(ctx, key, PageRequest{})
	if err != nil {
		return nil, storeError(op, key, err)
	}
	trades, err := s.store.ListTrades(ctx, key, PageRequest{})
	if err != nil {
		return nil, storeError(op, key, err)
	}
	quotes, err := s.latestCloses(ctx, positions)
	if err != nil {
		return nil, storeError(op, key, err)
	}

	valuations := Valuate(positions, quotes)
	out := &models.PortfolioExport{
		Portfolio:    *p,
		TotalValue:   p.Cash,
		UnrealizedPL: decimal.Zero,
		Positions:    valuations,
		Trades:       trades,
	}
	for _, v := range valuations {
		out.TotalValue = out.TotalValue.Add(v.Value)
		out.UnrealizedPL = out.UnrealizedPL.Add(v.UnrealizedPL)
	}
	return out, nil
}

// Summarize values the portfolio at the latest quotes
func (s *Service) Summarize(ctx context.Context, key models.PortfolioKey) (*models.PortfolioSummary, error) {
	const op = "summarize"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	p, err := s.store.GetPortfolio(ctx, key)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	positions, err := s.store.ListPositions(ctx, key, PageRequest{})
	if err != nil {
		return nil, storeError(op, key, err)
	}
	quotes, err := s.latestCloses(ctx, positions)
	if err != nil {
		return nil, storeError(op, key, err)
	}

	proj := s.projector.Project(p, positions, nil, quotes, s.now())
	return &models.PortfolioSummary{
		Username:            p.Username,
		Number:              p.Number,
		Cash:                p.Cash,
		BaseValue:           p.BaseValue,
		TotalValue:          proj.Stats.TotalValue,
		PositionsValue:      proj.Stats.PositionsValue,
		UnrealizedPL:        proj.Stats.UnrealizedPL,
		UnrealizedPLPercent: proj.Stats.UnrealizedPLPercent,
		TotalPL:             proj.Stats.TotalPL,
		TotalPLPercent:      proj.Stats.TotalPLPercent,
		Positions:           proj.Valuations,
		Allocation:          proj.Allocation,
	}, nil
}

// History returns the value time series and the trade-return distribution
func (s *Service) History(ctx context.Context, key models.PortfolioKey) (*models.PortfolioHistory, error) {
	const op = "history"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	p, err := s.store.GetPortfolio(ctx, key)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	points, err := s.store.ListValuePoints(ctx, key, historyLimit)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	return &models.PortfolioHistory{Values: points, Distribution: p.Stats.ReturnDistribution}, nil
}

// ListTrades returns one page of trades, newest first
func (s *Service) ListTrades(ctx context.Context, key models.PortfolioKey, page, pageSize int) (*models.Page[*models.Trade], error) {
	const op = "list trades"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	req, page, pageSize := pageRequest(page, pageSize, MaxTradesPageSize)
	total, err := s.store.CountTrades(ctx, key)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	trades, err := s.store.ListTrades(ctx, key, req)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	return &models.Page[*models.Trade]{Items: trades, Page: page, PageSize: pageSize, Total: total}, nil
}

// ListPositions returns one page of open positions ordered by symbol
func (s *Service) ListPositions(ctx context.Context, key models.PortfolioKey, page, pageSize int) (*models.Page[*models.Position], error) {
	const op = "list positions"
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	req, page, pageSize := pageRequest(page, pageSize, MaxPositionsPageSize)
	total, err := s.store.CountPositions(ctx, key)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	positions, err := s.store.ListPositions(ctx, key, req)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	return &models.Page[*models.Position]{Items: positions, Page: page, PageSize: pageSize, Total: total}, nil
}

// Reproject recomputes statistics for every stored portfolio
func (s *Service) Reproject(ctx context.Context) (int, error) {
	keys, err := s.store.ListPortfolioKeys(ctx)
	if err != nil {
		return 0, storeError("reproject", models.PortfolioKey{}, err)
	}
	done := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		unlock := s.locks.Lock(key)
		err := s.store.WithTx(ctx, func(repo Repository) error {
			if _, err := repo.GetPortfolio(ctx, key); err != nil {
				return storeError("reproject", key, err)
			}
			_, err := s.recompute(ctx, repo, key)
			return err
		})
		unlock()
		if err != nil {
			s.log.Warn().Err(err).Str("portfolio", key.String()).Msg("Failed to reproject portfolio")
			continue
		}
		done++
	}
	return done, nil
}

// recompute projects statistics inside the caller's transaction, stores
// them on the portfolio and appends a value point
func (s *Service) recompute(ctx context.Context, repo Repository, key models.PortfolioKey) (models.PortfolioStats, error) {
	p, err := repo.GetPortfolio(ctx, key)
	if err != nil {
		return models.PortfolioStats{}, storeError("recompute", key, err)
	}
	positions, err := repo.ListPositions(ctx, key, PageRequest{})
	if err != nil {
		return models.PortfolioStats{}, storeError("recompute", key, err)
	}
	trades, err := repo.ListTrades(ctx, key, PageRequest{})
	if err != nil {
		return models.PortfolioStats{}, storeError("recompute", key, err)
	}
	quotes, err := s.latestCloses(ctx, positions)
	if err != nil {
		s.log.Warn().Err(err).Str("portfolio", key.String()).Msg("Quotes unavailable, valuing at cost")
		quotes = nil
	}

	now := s.now()
	proj := s.projector.Project(p, positions, trades, quotes, now)
	p.Stats = proj.Stats
	p.UpdatedAt = now
	if err := repo.SavePortfolio(ctx, p); err != nil {
		return models.PortfolioStats{}, storeError("recompute", key, err)
	}
	point := models.ValuePoint{Date: now, TotalValue: proj.Stats.TotalValue, Cash: p.Cash}
	if err := repo.AppendValuePoint(ctx, key, point); err != nil {
		return models.PortfolioStats{}, storeError("recompute", key, err)
	}
	return proj.Stats, nil
}

func (s *Service) latestCloses(ctx context.Context, positions []*models.Position) (map[string]decimal.Decimal, error) {
	if len(positions) == 0 || s.quotes == nil {
		return map[string]decimal.Decimal{}, nil
	}
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	return s.quotes.LatestCloses(ctx, symbols)
}

func (s *Service) prepareTrade(ctx context.Context, op string, key models.PortfolioKey, req TradeRequest, action string) (*models.Trade, error) {
	if err := validateKey(op, key); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, newError(KindValidation, op, key, "", "symbol is required")
	}
	if !req.Shares.IsPositive() {
		return nil, newError(KindValidation, op, key, symbol, "shares must be positive")
	}
	if !req.Price.IsPositive() {
		return nil, newError(KindValidation, op, key, symbol, "price must be positive")
	}
	if req.Commission.IsNegative() || req.Total.IsNegative() {
		return nil, newError(KindValidation, op, key, symbol, "total and commission must not be negative")
	}
	if err := checkRange(op, key, symbol,
		namedAmount{"shares", req.Shares}, namedAmount{"price", req.Price},
		namedAmount{"total", req.Total}, namedAmount{"commission", req.Commission}); err != nil {
		return nil, err
	}

	exists, err := s.catalog.SymbolExists(ctx, symbol)
	if err != nil {
		return nil, storeError(op, key, err)
	}
	if !exists {
		return nil, newError(KindNotFound, op, key, symbol, "unknown symbol")
	}

	total := req.Total
	if total.IsZero() {
		total = req.Shares.Mul(req.Price)
		if action == models.ActionBuy {
			total = total.Add(req.Commission)
		} else {
			total = decimal.Max(total.Sub(req.Commission), decimal.Zero)
		}
	}
	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	return &models.Trade{
		Username:        key.Username,
		PortfolioNumber: key.Number,
		Date:            date,
		Symbol:          symbol,
		Action:          action,
		Shares:          req.Shares,
		Price:           req.Price,
		Total:           total,
		Commission:      req.Commission,
	}, nil
}

func (s *Service) fail(op string, key models.PortfolioKey, symbol string, err error) error {
	var le *Error
	if !errors.As(err, &le) {
		err = storeError(op, key, err)
	}
	if KindOf(err) == KindStore {
		s.log.Error().Err(err).Str("portfolio", key.String()).Str("op", op).Msg("Ledger operation failed")
	} else {
		s.log.Debug().Err(err).Str("portfolio", key.String()).Str("symbol", symbol).Msg("Ledger operation rejected")
	}
	return err
}

func (s *Service) publish(ctx context.Context, eventType string, key models.PortfolioKey, trade *models.Trade, stats *models.PortfolioStats) {
	if s.publisher == nil {
		return
	}
	event := models.LedgerEvent{
		EventType:       eventType,
		Username:        key.Username,
		PortfolioNumber: key.Number,
		Trade:           trade,
		Stats:           stats,
		Timestamp:       s.now(),
	}
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Str("portfolio", key.String()).Msg("Failed to publish ledger event")
	}
}

func validateKey(op string, key models.PortfolioKey) error {
	if strings.TrimSpace(key.Username) == "" {
		return newError(KindValidation, op, key, "", "username is required")
	}
	if key.Number < models.MinPortfolioNumber || key.Number > models.MaxPortfolioNumber {
		return newError(KindValidation, op, key, "", "portfolio number must be between %d and %d",
			models.MinPortfolioNumber, models.MaxPortfolioNumber)
	}
	return nil
}

func pageRequest(page, pageSize, maxSize int) (PageRequest, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return PageRequest{Limit: pageSize, Offset: (page - 1) * pageSize}, page, pageSize
}

func importedTradeID(key models.PortfolioKey, index int, t *models.Trade) string {
	name := strings.Join([]string{
		key.String(),
		strconv.Itoa(index),
		t.Date.UTC().Format(time.RFC3339Nano),
		t.Symbol,
		t.Action,
		t.Shares.String(),
		t.Price.String(),
		t.Total.String(),
		t.Commission.String(),
	}, "|")
	return uuid.NewSHA1(importNamespace, []byte(name)).String()
}
