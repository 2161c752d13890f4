package chain

import (
	"fmt"
	"time"

	"memochain/internal/domain"
	"memochain/internal/infra/crypto"
)

const (
	CheckIndex        = "index"
	CheckPreviousHash = "previous_hash"
	CheckTxRoot       = "tx_root"
	CheckHash         = "hash"
	CheckDifficulty   = "difficulty"
	CheckTimestamp    = "timestamp"
	CheckTransaction  = "transaction"
)

// Report is the outcome of a chain walk. FailedIndex is the first block at
// which any check failed.
type Report struct {
	Valid         bool   `json:"valid"`
	CheckedBlocks int64  `json:"checked_blocks"`
	FailedIndex   *int64 `json:"failed_index,omitempty"`
	Check         string `json:"check,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Err returns nil for a valid chain, otherwise an error wrapping domain.ErrIntegrity.
func (r Report) Err() error {
	if r.Valid {
		return nil
	}
	idx := int64(-1)
	if r.FailedIndex != nil {
		idx = *r.FailedIndex
	}
	return fmt.Errorf("%w at block %d (%s): %s", domain.ErrIntegrity, idx, r.Check, r.Reason)
}

// Validate walks blocks in order. Every block, genesis included, must carry a
// difficulty of at least minDifficulty and a hash that satisfies it.
func Validate(blocks []domain.Block, minDifficulty int) Report {
	if len(blocks) == 0 {
		return fail(0, 0, CheckIndex, "ledger has no genesis block")
	}
	var prevSealed time.Time
	for i, b := range blocks {
		pos := int64(i)
		if b.Index != pos {
			return fail(pos, pos, CheckIndex, fmt.Sprintf("block at position %d has index %d", pos, b.Index))
		}
		if i == 0 {
			if b.PreviousHash != domain.GenesisPreviousHash {
				return fail(pos, pos, CheckPreviousHash, "genesis previous_hash is not the zero sentinel")
			}
		} else if b.PreviousHash != blocks[i-1].Hash {
			return fail(pos, pos, CheckPreviousHash, fmt.Sprintf("previous_hash %s does not match block %d hash %s", b.PreviousHash, i-1, blocks[i-1].Hash))
		}
		for j, tx := range b.Transactions {
			if !crypto.IsDigest(tx.Hash) {
				return fail(pos, pos, CheckTransaction, fmt.Sprintf("transaction %d has malformed hash", j))
			}
		}
		root, err := TxRoot(b.Transactions)
		if err != nil {
			return fail(pos, pos, CheckTxRoot, err.Error())
		}
		if root != b.TxRoot {
			return fail(pos, pos, CheckTxRoot, "transaction root does not match block contents")
		}
		hash, err := ComputeHash(b)
		if err != nil {
			return fail(pos, pos, CheckHash, err.Error())
		}
		if hash != b.Hash {
			return fail(pos, pos, CheckHash, "stored hash does not match recomputed hash")
		}
		if b.Difficulty < minDifficulty {
			return fail(pos, pos, CheckDifficulty, fmt.Sprintf("difficulty %d below ledger minimum %d", b.Difficulty, minDifficulty))
		}
		if !MeetsDifficulty(b.Hash, b.Difficulty) {
			return fail(pos, pos, CheckDifficulty, "hash does not satisfy difficulty")
		}
		sealedAt := b.SealedAt()
		if sealedAt.IsZero() {
			return fail(pos, pos, CheckTimestamp, fmt.Sprintf("malformed timestamp %q", b.Timestamp))
		}
		if i > 0 && sealedAt.Before(prevSealed) {
			return fail(pos, pos, CheckTimestamp, fmt.Sprintf("timestamp %s precedes block %d", b.Timestamp, i-1))
		}
		prevSealed = sealedAt
	}
	return Report{Valid: true, CheckedBlocks: int64(len(blocks))}
}

func fail(checked, idx int64, check, reason string) Report {
	return Report{
		Valid:         false,
		CheckedBlocks: checked,
		FailedIndex:   &idx,
		Check:         check,
		Reason:        reason,
	}
}
