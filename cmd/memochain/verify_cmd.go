package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"memochain/internal/domain"
	"memochain/internal/infra/ledger"
	"memochain/internal/infra/ledgerfile"
	"memochain/internal/infra/logging"
	"memochain/internal/infra/roster"
	"memochain/internal/usecase"
)

var errReadOnly = errors.New("ledger opened read-only")

// snapshotBackend serves a ledger read from disk and refuses writes.
type snapshotBackend struct {
	blocks []domain.Block
}

func (b snapshotBackend) LoadBlocks(context.Context) ([]domain.Block, error) {
	return b.blocks, nil
}

func (snapshotBackend) AppendBlock(context.Context, domain.Block) error {
	return errReadOnly
}

func (snapshotBackend) Close() error { return nil }

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var ledgerPath, hash, inPath, rosterPath, matchMode, outPath string
	var claim usecase.Claim
	var minDifficulty int
	fs.StringVar(&ledgerPath, "ledger", "", "JSONL ledger file")
	fs.StringVar(&hash, "hash", "", "document SHA-256 (hex)")
	fs.StringVar(&inPath, "in", "", "document path")
	fs.StringVar(&claim.StudentID, "student-id", "", "claimed student id")
	fs.StringVar(&claim.Name, "student-name", "", "claimed student name")
	fs.StringVar(&claim.College, "college", "", "claimed college")
	fs.StringVar(&rosterPath, "roster", "", "students CSV")
	fs.StringVar(&matchMode, "match-mode", string(usecase.MatchNormalized), "normalized or strict")
	fs.IntVar(&minDifficulty, "min-difficulty", 1, "lowest difficulty a block may carry")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if ledgerPath == "" {
		fmt.Fprintln(os.Stderr, "verify requires --ledger")
		return 1
	}
	if hash != "" && inPath != "" {
		fmt.Fprintln(os.Stderr, "verify accepts --hash or --in, not both")
		return 1
	}
	mode, err := usecase.ParseMatchMode(matchMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var doc usecase.DocumentRef
	switch {
	case hash != "":
		doc = usecase.ByHash{Hash: hash}
	case inPath != "":
		content, err := os.ReadFile(inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read document: %v\n", err)
			return 1
		}
		doc = usecase.ByFile{Content: content}
	}
	var query usecase.Query
	switch {
	case doc != nil && claim.StudentID != "":
		query = usecase.DocumentClaimQuery{Document: doc, Claim: claim}
	case doc != nil:
		query = documentQuery(doc)
	case claim.StudentID != "":
		query = usecase.StudentQuery{Claim: claim}
	default:
		fmt.Fprintln(os.Stderr, "verify requires --hash, --in or --student-id")
		return 1
	}

	ctx := context.Background()
	blocks, err := ledgerfile.ReadFile(ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read ledger: %v\n", err)
		return 1
	}
	if len(blocks) == 0 {
		fmt.Fprintln(os.Stderr, "ledger is empty")
		return 1
	}
	difficulty := ledger.DefaultDifficulty
	if minDifficulty > difficulty {
		difficulty = minDifficulty
	}
	store, err := ledger.Open(ctx, ledger.Options{
		Difficulty:    difficulty,
		MinDifficulty: minDifficulty,
		Backend:       snapshotBackend{blocks: blocks},
		Logger:        logging.Discard(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		return 1
	}
	defer store.Close()

	reconciler := &usecase.Reconciler{Ledger: store, Mode: mode}
	if rosterPath != "" {
		entries, err := roster.LoadFile(rosterPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load roster: %v\n", err)
			return 1
		}
		reconciler.Roster = roster.New(entries)
	}

	verdict, err := reconciler.Verify(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}
	if err := writeJSON(outPath, verdict); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	if !verdict.Exists {
		return 1
	}
	for _, field := range verdict.Match {
		if field.Status == domain.FieldMismatch {
			return 1
		}
	}
	return 0
}

func documentQuery(doc usecase.DocumentRef) usecase.Query {
	switch d := doc.(type) {
	case usecase.ByFile:
		return usecase.FileQuery{Content: d.Content}
	case usecase.ByHash:
		return usecase.HashQuery{Hash: d.Hash}
	}
	return nil
}
