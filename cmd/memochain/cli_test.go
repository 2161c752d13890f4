package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memochain/internal/domain"
	"memochain/internal/infra/chain"
	"memochain/internal/infra/crypto"
	"memochain/internal/infra/ledger"
	"memochain/internal/infra/ledgerfile"
	"memochain/internal/infra/logging"
)

func writeLedger(t *testing.T, txs ...domain.Transaction) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.jsonl")
	file, err := ledgerfile.Open(path)
	if err != nil {
		t.Fatalf("open ledger file: %v", err)
	}
	store, err := ledger.Open(context.Background(), ledger.Options{
		Difficulty:    1,
		MiningTimeout: 10 * time.Second,
		Backend:       file,
		Logger:        logging.Discard(),
	})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	for _, tx := range txs {
		if _, _, err := store.AppendTransaction(context.Background(), tx); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func readJSON(t *testing.T, path string, out any) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
}

func TestRunUsage(t *testing.T) {
	if code := run([]string{"memochain"}); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
	if code := run([]string{"memochain", "bogus"}); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
}

func TestHashCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "memo.pdf")
	content := []byte("%PDF-1.4 hash me")
	if err := os.WriteFile(in, content, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out := filepath.Join(dir, "hash.json")
	if code := run([]string{"memochain", "hash", "--in", in, "--out", out}); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	var got hashOutput
	readJSON(t, out, &got)
	if got.Hash != crypto.Digest(content) || got.SizeBytes != int64(len(content)) {
		t.Fatalf("unexpected output: %+v", got)
	}
	if code := run([]string{"memochain", "hash"}); code != 1 {
		t.Fatalf("expected 1 without --in, got %d", code)
	}
}

func TestValidateCommand(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	path := writeLedger(t, domain.Transaction{Hash: hash, StudentID: "S1"})
	out := filepath.Join(t.TempDir(), "report.json")

	if code := run([]string{"memochain", "validate", "--ledger", path, "--out", out}); code != 0 {
		t.Fatalf("expected valid ledger, got %d", code)
	}
	var report chain.Report
	readJSON(t, out, &report)
	if !report.Valid || report.CheckedBlocks != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	tampered := strings.Replace(string(raw), `"student_id":"S1"`, `"student_id":"S9"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
	if code := run([]string{"memochain", "validate", "--ledger", path, "--out", out}); code != 1 {
		t.Fatalf("expected tampered ledger to fail, got %d", code)
	}
	report = chain.Report{}
	readJSON(t, out, &report)
	if report.Valid || report.FailedIndex == nil || *report.FailedIndex != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestVerifyCommand(t *testing.T) {
	content := []byte("%PDF-1.4 verify me")
	hash := crypto.Digest(content)
	path := writeLedger(t, domain.Transaction{Hash: hash, StudentID: "S1", StudentName: "Jane Doe", College: "Engineering"})
	dir := t.TempDir()
	out := filepath.Join(dir, "verdict.json")

	in := filepath.Join(dir, "memo.pdf")
	if err := os.WriteFile(in, content, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if code := run([]string{"memochain", "verify", "--ledger", path, "--in", in, "--out", out}); code != 0 {
		t.Fatalf("expected document to verify, got %d", code)
	}
	var verdict domain.MatchVerdict
	readJSON(t, out, &verdict)
	if !verdict.Exists || verdict.BlockIndex == nil || *verdict.BlockIndex != 1 {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	code := run([]string{"memochain", "verify", "--ledger", path, "--hash", hash, "--student-id", "S1", "--student-name", "John Roe", "--out", out})
	if code != 1 {
		t.Fatalf("expected mismatch exit code, got %d", code)
	}
	verdict = domain.MatchVerdict{}
	readJSON(t, out, &verdict)
	if verdict.Match[domain.FieldStudentName].Status != domain.FieldMismatch {
		t.Fatalf("expected name mismatch: %+v", verdict.Match)
	}

	if code := run([]string{"memochain", "verify", "--ledger", path, "--hash", strings.Repeat("cd", 32), "--out", out}); code != 1 {
		t.Fatalf("expected unknown hash to fail, got %d", code)
	}
	if code := run([]string{"memochain", "verify", "--ledger", path}); code != 1 {
		t.Fatalf("expected usage failure, got %d", code)
	}
}
