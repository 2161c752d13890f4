package main

import (
	"flag"
	"fmt"
	"os"

	"memochain/internal/infra/crypto"
)

type hashOutput struct {
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
}

func runHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var outPath string
	fs.StringVar(&inPath, "in", "", "document path")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(os.Stderr, "hash requires --in")
		return 1
	}

	f, err := os.Open(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open document: %v\n", err)
		return 1
	}
	defer f.Close()
	hash, size, err := crypto.DigestReader(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash document: %v\n", err)
		return 1
	}
	if err := writeJSON(outPath, hashOutput{Hash: hash, SizeBytes: size}); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
