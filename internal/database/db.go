package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

var (
	_ ledger.Store        = (*DB)(nil)
	_ ledger.AssetCatalog = (*DB)(nil)
	_ ledger.QuoteSource  = (*DB)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the Postgres implementation of ledger.Store. A DB returned by
// WithTx runs every statement on its transaction.
type DB struct {
	conn *sql.DB
	q    querier
	tx   *sql.Tx

	// portfolios already locked by this transaction
	locked map[models.PortfolioKey]bool
}

// New opens a connection pool and verifies it
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{conn: conn, q: conn}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// RunMigrations applies all pending migrations from a file:// source URL
func (db *DB) RunMigrations(sourceURL string) error {
	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// WithTx runs fn in one transaction. Portfolio rows read through the
// transaction are locked until it ends.
func (db *DB) WithTx(ctx context.Context, fn func(repo ledger.Repository) error) error {
	if db.tx != nil {
		return fn(db)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txDB := &DB{conn: db.conn, q: tx, tx: tx, locked: make(map[models.PortfolioKey]bool)}
	if err := fn(txDB); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockPortfolio takes a transaction-scoped advisory lock on the portfolio
// key. Unlike SELECT ... FOR UPDATE it also covers portfolios that do not
// exist yet.
func (db *DB) lockPortfolio(ctx context.Context, key models.PortfolioKey) error {
	if db.tx == nil || db.locked[key] {
		return nil
	}
	if _, err := db.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("failed to lock portfolio %s: %w", key, err)
	}
	db.locked[key] = true
	return nil
}

// ListPortfolioKeys returns every stored portfolio key
func (db *DB) ListPortfolioKeys(ctx context.Context) ([]models.PortfolioKey, error) {
	query := `
		SELECT username, portfolio_number
		FROM portfolios
		ORDER BY username, portfolio_number
	`
	rows, err := db.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var keys []models.PortfolioKey
	for rows.Next() {
		var k models.PortfolioKey
		if err := rows.Scan(&k.Username, &k.Number); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// limitOffset renders a PageRequest; a zero limit means all rows
func limitOffset(page ledger.PageRequest) (any, int) {
	if page.Limit <= 0 {
		return nil, page.Offset
	}
	return page.Limit, page.Offset
}
