package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// PageRequest selects a window of a listing. A zero Limit means no limit.
type PageRequest struct {
	Limit  int
	Offset int
}

// Repository is the per-portfolio persistence the ledger components need.
// GetPortfolio and GetPosition return an error wrapping models.ErrNotFound
// when the record is absent.
type Repository interface {
	GetPortfolio(ctx context.Context, key models.PortfolioKey) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, p *models.Portfolio) error

	GetPosition(ctx context.Context, key models.PortfolioKey, symbol string) (*models.Position, error)
	SavePosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, key models.PortfolioKey, symbol string) error
	DeletePositions(ctx context.Context, key models.PortfolioKey) error
	CountPositions(ctx context.Context, key models.PortfolioKey) (int, error)
	ListPositions(ctx context.Context, key models.PortfolioKey, page PageRequest) ([]*models.Position, error)

	InsertTrade(ctx context.Context, t *models.Trade) error
	DeleteTrades(ctx context.Context, key models.PortfolioKey) error
	CountTrades(ctx context.Context, key models.PortfolioKey) (int, error)
	// ListTrades returns trades newest first
	ListTrades(ctx context.Context, key models.PortfolioKey, page PageRequest) ([]*models.Trade, error)

	AppendValuePoint(ctx context.Context, key models.PortfolioKey, point models.ValuePoint) error
	// ListValuePoints returns the most recent points, oldest first
	ListValuePoints(ctx context.Context, key models.PortfolioKey, limit int) ([]models.ValuePoint, error)
}

// Store is a Repository that can run a unit of work atomically. The
// Repository passed to fn must hold an exclusive lock on the portfolio row
// it first reads, so that read-then-write sequences are serialized per
// portfolio across processes.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(repo Repository) error) error
	ListPortfolioKeys(ctx context.Context) ([]models.PortfolioKey, error)
}

// AssetCatalog answers whether a symbol may be traded
type AssetCatalog interface {
	SymbolExists(ctx context.Context, symbol string) (bool, error)
}

// QuoteSource returns the latest close per symbol. Symbols without a known
// close are absent from the result.
type QuoteSource interface {
	LatestCloses(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// EventPublisher receives ledger events after their mutation committed
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event models.LedgerEvent) error
}
