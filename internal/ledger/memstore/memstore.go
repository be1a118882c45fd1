// Package memstore is an in-memory ledger store used by service and API tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

type positionKey struct {
	portfolio models.PortfolioKey
	symbol    string
}

// Store keeps portfolios, positions, trades and value history in maps.
// WithTx snapshots all maps and restores them when fn fails.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	portfolios map[models.PortfolioKey]models.Portfolio
	positions  map[positionKey]models.Position
	trades     map[models.PortfolioKey][]models.Trade
	history    map[models.PortfolioKey][]models.ValuePoint

	symbols map[string]bool
	quotes  map[string]decimal.Decimal

	// FailOn makes the named method return an error, for failure tests
	FailOn map[string]error
}

// New creates an empty store
func New() *Store {
	return &Store{
		portfolios: make(map[models.PortfolioKey]models.Portfolio),
		positions:  make(map[positionKey]models.Position),
		trades:     make(map[models.PortfolioKey][]models.Trade),
		history:    make(map[models.PortfolioKey][]models.ValuePoint),
		symbols:    make(map[string]bool),
		quotes:     make(map[string]decimal.Decimal),
		FailOn:     make(map[string]error),
	}
}

// AddSymbols registers symbols in the asset catalog
func (s *Store) AddSymbols(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		s.symbols[strings.ToUpper(sym)] = true
	}
}

// SetQuote sets the latest close of a symbol
func (s *Store) SetQuote(symbol string, close decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[strings.ToUpper(symbol)] = close
}

// SymbolExists implements ledger.AssetCatalog
func (s *Store) SymbolExists(_ context.Context, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["SymbolExists"]; err != nil {
		return false, err
	}
	return s.symbols[symbol], nil
}

// LatestCloses implements ledger.QuoteSource
func (s *Store) LatestCloses(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailOn["LatestCloses"]; err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

// WithTx runs fn against the store and rolls every map back if fn fails
func (s *Store) WithTx(ctx context.Context, fn func(repo ledger.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	portfolios map[models.PortfolioKey]models.Portfolio
	positions  map[positionKey]models.Position
	trades     map[models.PortfolioKey][]models.Trade
	history    map[models.PortfolioKey][]models.ValuePoint
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		portfolios: make(map[models.PortfolioKey]models.Portfolio, len(s.portfolios)),
		positions:  make(map[positionKey]models.Position, len(s.positions)),
		trades:     make(map[models.PortfolioKey][]models.Trade, len(s.trades)),
		history:    make(map[models.PortfolioKey][]models.ValuePoint, len(s.history)),
	}
	for k, v := range s.portfolios {
		snap.portfolios[k] = v
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	for k, v := range s.trades {
		snap.trades[k] = append([]models.Trade(nil), v...)
	}
	for k, v := range s.history {
		snap.history[k] = append([]models.ValuePoint(nil), v...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios = snap.portfolios
	s.positions = snap.positions
	s.trades = snap.trades
	s.history = snap.history
}

func (s *Store) fail(method string) error {
	if err := s.FailOn[method]; err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// GetPortfolio implements ledger.Repository
func (s *Store) GetPortfolio(_ context.Context, key models.PortfolioKey) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPortfolio"); err != nil {
		return nil, err
	}
	p, ok := s.portfolios[key]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", key, models.ErrNotFound)
	}
	return &p, nil
}

// SavePortfolio implements ledger.Repository
func (s *Store) SavePortfolio(_ context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SavePortfolio"); err != nil {
		return err
	}
	p.Version++
	s.portfolios[p.Key()] = *p
	return nil
}

// ListPortfolioKeys implements ledger.Store
func (s *Store) ListPortfolioKeys(_ context.Context) ([]models.PortfolioKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]models.PortfolioKey, 0, len(s.portfolios))
	for k := range s.portfolios {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// GetPosition implements ledger.Repository
func (s *Store) GetPosition(_ context.Context, key models.PortfolioKey, symbol string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPosition"); err != nil {
		return nil, err
	}
	p, ok := s.positions[positionKey{key, symbol}]
	if !ok {
		return nil, fmt.Errorf("position %s %s: %w", key, symbol, models.ErrNotFound)
	}
	return &p, nil
}

// SavePosition implements ledger.Repository
func (s *Store) SavePosition(_ context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SavePosition"); err != nil {
		return err
	}
	s.positions[positionKey{p.Key(), p.Symbol}] = *p
	return nil
}

// DeletePosition implements ledger.Repository
func (s *Store) DeletePosition(_ context.Context, key models.PortfolioKey, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeletePosition"); err != nil {
		return err
	}
	delete(s.positions, positionKey{key, symbol})
	return nil
}

// DeletePositions implements ledger.Repository
func (s *Store) DeletePositions(_ context.Context, key models.PortfolioKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeletePositions"); err != nil {
		return err
	}
	for k := range s.positions {
		if k.portfolio == key {
			delete(s.positions, k)
		}
	}
	return nil
}

// CountPositions implements ledger.Repository
func (s *Store) CountPositions(_ context.Context, key models.PortfolioKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.positions {
		if k.portfolio == key {
			n++
		}
	}
	return n, nil
}

// ListPositions implements ledger.Repository
func (s *Store) ListPositions(_ context.Context, key models.PortfolioKey, page ledger.PageRequest) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Position{}
	for k, p := range s.positions {
		if k.portfolio == key {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return window(out, page), nil
}

// InsertTrade implements ledger.Repository
func (s *Store) InsertTrade(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertTrade"); err != nil {
		return err
	}
	s.trades[t.Key()] = append(s.trades[t.Key()], *t)
	return nil
}

// DeleteTrades implements ledger.Repository
func (s *Store) DeleteTrades(_ context.Context, key models.PortfolioKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteTrades"); err != nil {
		return err
	}
	delete(s.trades, key)
	return nil
}

// CountTrades implements ledger.Repository
func (s *Store) CountTrades(_ context.Context, key models.PortfolioKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades[key]), nil
}

// ListTrades implements ledger.Repository
func (s *Store) ListTrades(_ context.Context, key models.PortfolioKey, page ledger.PageRequest) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// same order as the SQL store: date, then created_at, newest first.
	// Full ties fall back to the most recent insert first.
	stored := s.trades[key]
	out := make([]*models.Trade, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		t := stored[i]
		out = append(out, &t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date.After(out[j].Date)
	})
	return window(out, page), nil
}

// AppendValuePoint implements ledger.Repository
func (s *Store) AppendValuePoint(_ context.Context, key models.PortfolioKey, point models.ValuePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AppendValuePoint"); err != nil {
		return err
	}
	s.history[key] = append(s.history[key], point)
	return nil
}

// ListValuePoints implements ledger.Repository
func (s *Store) ListValuePoints(_ context.Context, key models.PortfolioKey, limit int) ([]models.ValuePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := s.history[key]
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return append([]models.ValuePoint(nil), points...), nil
}

func window[T any](items []T, page ledger.PageRequest) []T {
	if page.Offset >= len(items) {
		if page.Offset == 0 {
			return items
		}
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}
