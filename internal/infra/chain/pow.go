package chain

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"memochain/internal/domain"
)

// cancelCheckInterval is how many nonces are tried between context checks.
const cancelCheckInterval = 4096

// Mine searches for a nonce whose block hash satisfies b.Difficulty and returns
// the sealed block. The search stops when ctx is done: a deadline surfaces as
// domain.ErrMiningTimeout, cancellation as the context error.
func Mine(ctx context.Context, b domain.Block) (domain.Block, error) {
	hdr, err := headerBytes(b)
	if err != nil {
		return domain.Block{}, err
	}
	h := sha256.New()
	for nonce := uint64(0); ; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return domain.Block{}, fmt.Errorf("%w: block %d difficulty %d after %d nonces", domain.ErrMiningTimeout, b.Index, b.Difficulty, nonce)
				}
				return domain.Block{}, err
			}
		}
		hash := hashWithNonce(h, hdr, nonce)
		if MeetsDifficulty(hash, b.Difficulty) {
			b.Nonce = nonce
			b.Hash = hash
			return b, nil
		}
		if nonce == math.MaxUint64 {
			return domain.Block{}, fmt.Errorf("%w: nonce space exhausted", domain.ErrMiningTimeout)
		}
	}
}
