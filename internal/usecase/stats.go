package usecase

import (
	"context"
	"errors"

	"memochain/internal/domain"
)

type LedgerStatsResult struct {
	TotalBlocks       int64             `json:"total_blocks"`
	TotalTransactions int64             `json:"total_transactions"`
	LatestBlock       *domain.Block     `json:"latest_block"`
	Difficulty        int               `json:"difficulty"`
	Index             domain.IndexStats `json:"index"`
}

type LedgerStats struct {
	Ledger LedgerStatsSource
}

func (uc *LedgerStats) Execute(ctx context.Context) (*LedgerStatsResult, error) {
	if uc.Ledger == nil {
		return nil, errors.New("ledger required")
	}
	stats, err := uc.Ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &LedgerStatsResult{
		TotalBlocks:       stats.TotalBlocks,
		TotalTransactions: stats.TotalTransactions,
		LatestBlock:       stats.LatestBlock,
		Difficulty:        uc.Ledger.Difficulty(),
		Index:             uc.Ledger.IndexStats(),
	}, nil
}
