package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Recompute statistics and record a value point for every portfolio",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := ledger.NewService(db, db, db, log)
		n, err := svc.Reproject(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reprojected %d portfolios\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
