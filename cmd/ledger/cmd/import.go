package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace a portfolio with the contents of a JSON export",
	Long: `Import reads a JSON document with stats, positions and trades and replaces
the portfolio's cash, base value, positions and trade history with it.

With --dry-run the document is only sanitized and nothing is written.

Example:
  ledger import -u alice -p 1 backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importFlags  portfolioFlags
	importDryRun bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importFlags.bind(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the file without writing")
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var req ledger.ImportRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	clean, err := importPortfolio(cmd, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cash %s, base value %s, %d positions, %d trades\n",
		clean.Cash, clean.BaseValue, len(clean.Positions), len(clean.Trades))
	return nil
}

func importPortfolio(cmd *cobra.Command, req ledger.ImportRequest) (*ledger.SanitizedImport, error) {
	if importDryRun {
		return ledger.ImportSanitizer{}.Sanitize(req)
	}

	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	svc := ledger.NewService(db, db, db, log)
	return svc.ImportPortfolio(cmd.Context(), importFlags.key(), req)
}
