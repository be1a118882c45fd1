package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// ledgerTables in dependency order, children first
var ledgerTables = []string{
	"portfolio_value_history",
	"trades",
	"positions",
	"portfolios",
	"price_data_daily",
	"stocks",
}

// TestDB is a migrated database in a throwaway container. The container is
// terminated when the test finishes.
type TestDB struct {
	*DB
}

// SetupTestDB starts PostgreSQL, connects and applies the migrations
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(connStr)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(migrationsURL()), "failed to run migrations")
	return &TestDB{DB: db}
}

// migrationsURL locates db/migrations relative to this file
func migrationsURL() string {
	_, filename, _, _ := runtime.Caller(0)
	return "file://" + filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")
}

// TruncateAll empties every ledger table
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()
	_, err := tdb.conn.Exec(`TRUNCATE TABLE ` + strings.Join(ledgerTables, ", ") + ` RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "failed to truncate tables")
}

// Conn returns the underlying sql.DB for direct queries in tests
func (tdb *TestDB) Conn() *sql.DB {
	return tdb.conn
}

// SeedPortfolio stores an empty portfolio so rows referencing it can be inserted
func (tdb *TestDB) SeedPortfolio(t *testing.T, key models.PortfolioKey, cash string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	err := tdb.SavePortfolio(context.Background(), &models.Portfolio{
		Username:  key.Username,
		Number:    key.Number,
		Cash:      decimal.RequireFromString(cash),
		UpdatedAt: now,
	})
	require.NoError(t, err, "failed to seed portfolio %s", key)
}
