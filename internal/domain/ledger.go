package domain

import "time"

// GenesisPreviousHash is the previous_hash sentinel carried by block 0.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Transaction records one verified document. Fields are immutable once the
// enclosing block is sealed.
type Transaction struct {
	Hash             string `json:"hash"`
	Verified         bool   `json:"verified"`
	StudentID        string `json:"student_id,omitempty"`
	StudentName      string `json:"student_name,omitempty"`
	College          string `json:"college,omitempty"`
	Uploader         string `json:"uploader,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	MediaType        string `json:"media_type,omitempty"`
	SizeBytes        int64  `json:"size_bytes,omitempty"`
	Timestamp        string `json:"tx_timestamp"`
}

type Block struct {
	Index        int64         `json:"index"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previous_hash"`
	TxRoot       string        `json:"tx_root"`
	Difficulty   int           `json:"difficulty"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// SealedAt parses the block timestamp. Zero time is returned for malformed values.
func (b Block) SealedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, b.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (b Block) Clone() Block {
	out := b
	if b.Transactions != nil {
		out.Transactions = make([]Transaction, len(b.Transactions))
		copy(out.Transactions, b.Transactions)
	}
	return out
}

// TxLocation points at a transaction inside the ledger.
type TxLocation struct {
	BlockIndex int64
	TxIndex    int
	LeafIndex  int64
}

type LedgerStats struct {
	TotalBlocks       int64  `json:"total_blocks"`
	TotalTransactions int64  `json:"total_transactions"`
	LatestBlock       *Block `json:"latest_block,omitempty"`
}

// LedgerProof is a Merkle inclusion proof of a transaction leaf in the
// ledger-wide accumulator.
type LedgerProof struct {
	Hash       string   `json:"hash"`
	LeafHash   string   `json:"leaf_hash"`
	LeafIndex  int64    `json:"leaf_index"`
	TreeSize   int64    `json:"tree_size"`
	RootHash   string   `json:"root_hash"`
	Path       []string `json:"path"`
	BlockIndex int64    `json:"block_index"`
}
