package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/trogers1052/portfolio-ledger/internal/config"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/logger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

var (
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Portfolio ledger and position aggregation service",
	Long: `Ledger records buys, sells and cash deposits for up to ten portfolios per
user, keeps weighted-average positions and projects portfolio statistics.

Configuration is read from the environment (and an optional .env file).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log = logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func openDB() (*database.DB, error) {
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// portfolioFlags binds --user and --portfolio on a command
type portfolioFlags struct {
	username string
	number   int
}

func (f *portfolioFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "user", "u", "", "portfolio owner (required)")
	cmd.Flags().IntVarP(&f.number, "portfolio", "p", 0, "portfolio number 0-9")
	cmd.MarkFlagRequired("user")
}

func (f *portfolioFlags) key() models.PortfolioKey {
	return models.PortfolioKey{Username: f.username, Number: f.number}
}
