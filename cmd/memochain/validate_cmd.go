package main

import (
	"flag"
	"fmt"
	"os"

	"memochain/internal/infra/chain"
	"memochain/internal/infra/ledgerfile"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var ledgerPath string
	var minDifficulty int
	var outPath string
	fs.StringVar(&ledgerPath, "ledger", "", "JSONL ledger file")
	fs.IntVar(&minDifficulty, "min-difficulty", 1, "lowest difficulty a block may carry")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if ledgerPath == "" {
		fmt.Fprintln(os.Stderr, "validate requires --ledger")
		return 1
	}

	blocks, err := ledgerfile.ReadFile(ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read ledger: %v\n", err)
		return 1
	}
	report := chain.Validate(blocks, minDifficulty)
	if err := writeJSON(outPath, report); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	if !report.Valid {
		return 1
	}
	return 0
}
