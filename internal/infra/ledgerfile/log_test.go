package ledgerfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"memochain/internal/domain"
	"memochain/internal/infra/ledger"
	"memochain/internal/infra/logging"
)

func sampleBlock(index int64, prev string) domain.Block {
	return domain.Block{
		Index:        index,
		Timestamp:    "2024-01-01T00:00:00Z",
		PreviousHash: prev,
		Transactions: []domain.Transaction{{Hash: strings.Repeat("aa", 32), Verified: true, StudentID: "S1"}},
		Hash:         strings.Repeat("bb", 32),
	}
}

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	if err := log.AppendBlock(ctx, sampleBlock(0, domain.GenesisPreviousHash)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.AppendBlock(ctx, sampleBlock(1, strings.Repeat("bb", 32))); err != nil {
		t.Fatalf("append: %v", err)
	}

	blocks, err := log.LoadBlocks(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[1].Transactions[0].StudentID != "S1" {
		t.Fatalf("unexpected transaction: %+v", blocks[1].Transactions[0])
	}

	fromDisk, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(fromDisk) != 2 {
		t.Fatalf("expected 2 blocks on disk, got %d", len(fromDisk))
	}
}

func TestReadFileMissing(t *testing.T) {
	blocks, err := ReadFile(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("read missing: %v", err)
	}
	if blocks != nil {
		t.Fatalf("expected no blocks, got %d", len(blocks))
	}
}

func TestDecodeRejectsCorruptLine(t *testing.T) {
	_, err := Decode(strings.NewReader("{\"index\":0}\n\n{not json\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClosedLog(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "ledger.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := log.AppendBlock(context.Background(), sampleBlock(0, domain.GenesisPreviousHash)); err != os.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestLedgerRestoresFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	ctx := context.Background()
	hash := strings.Repeat("c3", 32)

	backend, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store, err := ledger.Open(ctx, ledger.Options{Difficulty: 2, Backend: backend, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if _, _, err := store.AppendTransaction(ctx, domain.Transaction{Hash: hash, StudentID: "S7"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	tip, err := store.LatestBlock(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	backend, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	restored, err := ledger.Open(ctx, ledger.Options{Difficulty: 2, Backend: backend, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("restore ledger: %v", err)
	}
	defer restored.Close()

	restoredTip, err := restored.LatestBlock(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if restoredTip.Hash != tip.Hash {
		t.Fatalf("tip mismatch: %s vs %s", restoredTip.Hash, tip.Hash)
	}
	if !restored.MayContain(hash) {
		t.Fatal("restored index missing hash")
	}
	if _, tx, err := restored.FindTransactionByHash(ctx, hash); err != nil || tx.StudentID != "S7" {
		t.Fatalf("restored lookup: %v %+v", err, tx)
	}
}

// tornFile writes half of the next buffer and then fails, like a full disk.
type tornFile struct {
	*os.File
	failWrites   int
	failTruncate bool
}

func (f *tornFile) Write(p []byte) (int, error) {
	if f.failWrites > 0 {
		f.failWrites--
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

func (f *tornFile) Truncate(size int64) error {
	if f.failTruncate {
		return errors.New("read-only file system")
	}
	return f.File.Truncate(size)
}

func TestTornAppendIsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()
	ctx := context.Background()
	if err := log.AppendBlock(ctx, sampleBlock(0, domain.GenesisPreviousHash)); err != nil {
		t.Fatalf("append: %v", err)
	}

	log.f = &tornFile{File: log.f.(*os.File), failWrites: 1}
	if err := log.AppendBlock(ctx, sampleBlock(1, strings.Repeat("bb", 32))); err == nil {
		t.Fatal("expected the torn append to fail")
	}
	if err := log.AppendBlock(ctx, sampleBlock(1, strings.Repeat("bb", 32))); err != nil {
		t.Fatalf("append after rollback: %v", err)
	}

	blocks, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(blocks) != 2 || blocks[1].Index != 1 {
		t.Fatalf("expected 2 clean blocks, got %+v", blocks)
	}
}

func TestTornAppendWithoutRollbackStopsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer log.Close()
	ctx := context.Background()

	log.f = &tornFile{File: log.f.(*os.File), failWrites: 1, failTruncate: true}
	if err := log.AppendBlock(ctx, sampleBlock(0, domain.GenesisPreviousHash)); err == nil {
		t.Fatal("expected the torn append to fail")
	}
	if err := log.AppendBlock(ctx, sampleBlock(0, domain.GenesisPreviousHash)); err == nil || !strings.Contains(err.Error(), "partial line") {
		t.Fatalf("expected the log to refuse appends, got %v", err)
	}
}
