package usecase

import (
	"context"
	"errors"
	"time"

	"memochain/internal/domain"

	"github.com/google/uuid"
)

type Export struct {
	ExportID   string               `json:"export_id"`
	ExportedAt string               `json:"exported_at"`
	Stats      domain.LedgerStats   `json:"stats"`
	Blocks     []domain.Block       `json:"blocks"`
	Roster     []domain.RosterEntry `json:"roster"`
}

// ExportSnapshot serialises the ledger and roster for external inspection.
// Stats are derived from the same snapshot as Blocks.
type ExportSnapshot struct {
	Ledger LedgerSnapshotter
	Roster Roster
	Clock  func() time.Time
}

func (uc *ExportSnapshot) Execute(ctx context.Context) (*Export, error) {
	if uc.Ledger == nil {
		return nil, errors.New("ledger required")
	}
	blocks, err := uc.Ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	roster := []domain.RosterEntry{}
	if uc.Roster != nil {
		entries, err := uc.Roster.List(ctx)
		if err != nil {
			return nil, err
		}
		roster = entries
	}

	clock := uc.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Export{
		ExportID:   uuid.NewString(),
		ExportedAt: clock().UTC().Format(time.RFC3339),
		Stats:      statsFromBlocks(blocks),
		Blocks:     blocks,
		Roster:     roster,
	}, nil
}

func statsFromBlocks(blocks []domain.Block) domain.LedgerStats {
	stats := domain.LedgerStats{TotalBlocks: int64(len(blocks))}
	for _, b := range blocks {
		stats.TotalTransactions += int64(len(b.Transactions))
	}
	if len(blocks) > 0 {
		latest := blocks[len(blocks)-1]
		stats.LatestBlock = &latest
	}
	return stats
}
