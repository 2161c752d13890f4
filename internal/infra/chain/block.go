// Package chain seals blocks and checks the hash chain.
//
// A block hash is hex(SHA-256(header || uint64be(nonce))) where header is the
// canonical JSON of {index, timestamp, previous_hash, tx_root, difficulty}.
// tx_root is the Merkle root over the transaction leaf hashes.
package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"time"

	"memochain/internal/domain"
	"memochain/internal/infra/crypto"
	"memochain/internal/infra/merkle"
)

// MaxDifficulty is the number of hex nibbles in a SHA-256 digest.
const MaxDifficulty = sha256.Size * 2

type header struct {
	Index        int64  `json:"index"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	TxRoot       string `json:"tx_root"`
	Difficulty   int    `json:"difficulty"`
}

func headerBytes(b domain.Block) ([]byte, error) {
	return crypto.CanonicalizeAny(header{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		PreviousHash: b.PreviousHash,
		TxRoot:       b.TxRoot,
		Difficulty:   b.Difficulty,
	})
}

// LeafHashes returns the Merkle leaves of txs in order.
func LeafHashes(txs []domain.Transaction) ([][]byte, error) {
	leaves := make([][]byte, 0, len(txs))
	for i, tx := range txs {
		leaf, err := crypto.LeafHash(tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

func TxRoot(txs []domain.Transaction) (string, error) {
	leaves, err := LeafHashes(txs)
	if err != nil {
		return "", err
	}
	root, err := merkle.RootOrEmpty(leaves)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(root), nil
}

// ComputeHash recomputes the block hash from the block's own contents. The
// stored TxRoot is used as-is; callers that distrust it recompute TxRoot first.
func ComputeHash(b domain.Block) (string, error) {
	hdr, err := headerBytes(b)
	if err != nil {
		return "", err
	}
	return hashWithNonce(sha256.New(), hdr, b.Nonce), nil
}

func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// NewBlock assembles an unsealed successor of prev. A nil prev builds genesis.
func NewBlock(prev *domain.Block, txs []domain.Transaction, now time.Time, difficulty int) (domain.Block, error) {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return domain.Block{}, fmt.Errorf("invalid difficulty %d", difficulty)
	}
	b := domain.Block{
		Index:        0,
		PreviousHash: domain.GenesisPreviousHash,
		Difficulty:   difficulty,
		Transactions: append([]domain.Transaction{}, txs...),
	}
	ts := now.UTC()
	if prev != nil {
		b.Index = prev.Index + 1
		b.PreviousHash = prev.Hash
		if prevTS := prev.SealedAt(); ts.Before(prevTS) {
			ts = prevTS
		}
	}
	b.Timestamp = ts.Format(time.RFC3339Nano)
	root, err := TxRoot(b.Transactions)
	if err != nil {
		return domain.Block{}, err
	}
	b.TxRoot = root
	return b, nil
}

func hashWithNonce(h hash.Hash, hdr []byte, nonce uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Reset()
	h.Write(hdr)
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}
