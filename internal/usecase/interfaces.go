package usecase

import (
	"context"

	"memochain/internal/domain"
)

// LedgerReader is the read side of the ledger used during reconciliation.
// MayContain is a membership-index probe; a true answer must be confirmed
// with FindTransactionByHash.
type LedgerReader interface {
	MayContain(hash string) bool
	FindTransactionByHash(ctx context.Context, hash string) (domain.Block, domain.Transaction, error)
	FindLatestTransactionByStudent(ctx context.Context, studentID string) (domain.Block, domain.Transaction, error)
}

type LedgerWriter interface {
	LedgerReader
	AppendTransaction(ctx context.Context, tx domain.Transaction) (blockIndex int64, blockHash string, err error)
}

type LedgerSnapshotter interface {
	Snapshot(ctx context.Context) ([]domain.Block, error)
}

type LedgerStatsSource interface {
	Stats(ctx context.Context) (domain.LedgerStats, error)
	IndexStats() domain.IndexStats
	Difficulty() int
}

type Roster interface {
	Get(ctx context.Context, id string) (domain.RosterEntry, error)
	List(ctx context.Context) ([]domain.RosterEntry, error)
}

// VerificationRecorder receives reconciliation outcomes. *metrics.Metrics
// satisfies it.
type VerificationRecorder interface {
	ObserveVerification(kind string, exists bool)
	ObserveIndexProbe(result string)
}
