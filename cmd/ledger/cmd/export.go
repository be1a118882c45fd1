package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump a portfolio as JSON, or its trade history as CSV",
	RunE:  runExport,
}

var (
	exportFlags  portfolioFlags
	exportFormat string
	exportOut    string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportFlags.bind(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format (json, csv)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "json" && exportFormat != "csv" {
		return fmt.Errorf("unknown format %q", exportFormat)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	svc := ledger.NewService(db, db, db, log)
	export, err := svc.ExportPortfolio(cmd.Context(), exportFlags.key())
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if exportFormat == "csv" {
		return ledger.WriteTradesCSV(w, export.Trades)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}
