package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "hash":
		return runHash(args[2:])
	case "validate":
		return runValidate(args[2:])
	case "verify":
		return runVerify(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "memochain"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s hash --in <file> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s validate --ledger <chain.jsonl> [--min-difficulty <n>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify --ledger <chain.jsonl> (--hash <hex>|--in <file>) [--student-id <id>] [--student-name <name>] [--college <name>] [--roster <students.csv>] [--match-mode normalized|strict] [--out <file>]\n", name)
}
