//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"strings"
	"testing"

	"memochain/internal/config"
	"memochain/internal/domain"
	"memochain/internal/infra/ledger"
	"memochain/internal/infra/logging"

	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	store, err := NewStore(config.Config{PostgresDSN: dsn}, logging.Discard())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.DB.Exec(`TRUNCATE ledger_transactions, ledger_blocks, students RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store.DB
}

func TestBlockRepositoryBacksLedger(t *testing.T) {
	gdb := setupTestDB(t)
	ctx := context.Background()
	repo := NewBlockRepository(gdb)
	hash := strings.Repeat("ab", 32)

	store, err := ledger.Open(ctx, ledger.Options{Difficulty: 1, Backend: repo, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if _, _, err := store.AppendTransaction(ctx, domain.Transaction{Hash: hash, StudentID: "S1", StudentName: "Jane"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	restored, err := ledger.Open(ctx, ledger.Options{Difficulty: 1, Backend: repo, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("restore ledger: %v", err)
	}
	if _, tx, err := restored.FindTransactionByHash(ctx, hash); err != nil || tx.StudentName != "Jane" {
		t.Fatalf("restored lookup: %v %+v", err, tx)
	}
	blocks, txs, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if blocks != 2 || txs != 1 {
		t.Fatalf("expected 2 blocks and 1 transaction, got %d/%d", blocks, txs)
	}
}

func TestRosterRepositoryUpsert(t *testing.T) {
	gdb := setupTestDB(t)
	ctx := context.Background()
	repo := NewRosterRepository(gdb)

	if err := repo.Upsert(ctx, []domain.RosterEntry{{ID: "S1", Name: "Jane Doe", College: "Engineering"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, []domain.RosterEntry{{ID: "S1", Name: "Jane Doe", College: "Science", NationalID: "N-1"}}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	entry, err := repo.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.College != "Science" || entry.NationalID != "N-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if _, err := repo.Get(ctx, "missing"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
