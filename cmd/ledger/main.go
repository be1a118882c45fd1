package main

import (
	"os"

	"github.com/trogers1052/portfolio-ledger/cmd/ledger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
