package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memochain/internal/domain"
	"memochain/internal/infra/crypto"
)

const (
	UploadStatusSuccess = "success"
	UploadStatusExists  = "exists"
)

type UploadRequest struct {
	// Document is ByFile for uploaded bytes or ByHash for a precomputed digest.
	Document  DocumentRef
	Filename  string
	MediaType string

	StudentID   string
	StudentName string
	College     string
	Uploader    string
}

type UploadResult struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Hash       string `json:"hash"`
	BlockIndex int64  `json:"block_index"`
	BlockHash  string `json:"block_hash"`
}

type RecordMemo struct {
	Ledger LedgerWriter
	Clock  func() time.Time
}

func (uc *RecordMemo) Execute(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if uc.Ledger == nil {
		return nil, errors.New("ledger required")
	}
	tx := domain.Transaction{
		StudentID:        strings.TrimSpace(req.StudentID),
		StudentName:      strings.TrimSpace(req.StudentName),
		College:          strings.TrimSpace(req.College),
		Uploader:         strings.TrimSpace(req.Uploader),
		OriginalFilename: strings.TrimSpace(req.Filename),
	}

	switch doc := req.Document.(type) {
	case ByFile:
		mediaType, err := crypto.CheckMemoMediaType(req.MediaType)
		if err != nil {
			return nil, err
		}
		hash, err := doc.digest()
		if err != nil {
			return nil, err
		}
		tx.Hash = hash
		tx.MediaType = mediaType
		tx.SizeBytes = int64(len(doc.Content))
	case ByHash:
		hash, err := doc.digest()
		if err != nil {
			return nil, err
		}
		tx.Hash = hash
	default:
		return nil, fmt.Errorf("%w: a file or hash is required", domain.ErrValidation)
	}

	if uc.Ledger.MayContain(tx.Hash) {
		block, _, err := uc.Ledger.FindTransactionByHash(ctx, tx.Hash)
		if err == nil {
			return existsResult(tx.Hash, block.Index, block.Hash), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	clock := uc.Clock
	if clock == nil {
		clock = time.Now
	}
	tx.Timestamp = clock().UTC().Format(time.RFC3339Nano)

	index, blockHash, err := uc.Ledger.AppendTransaction(ctx, tx)
	if errors.Is(err, domain.ErrAlreadyRecorded) {
		return existsResult(tx.Hash, index, blockHash), nil
	}
	if err != nil {
		return nil, err
	}

	message := "Hash recorded in blockchain"
	if tx.MediaType != "" {
		message = "File uploaded and added to blockchain"
	}
	return &UploadResult{
		Status:     UploadStatusSuccess,
		Message:    message,
		Hash:       tx.Hash,
		BlockIndex: index,
		BlockHash:  blockHash,
	}, nil
}

func existsResult(hash string, index int64, blockHash string) *UploadResult {
	return &UploadResult{
		Status:     UploadStatusExists,
		Message:    "File already exists in blockchain",
		Hash:       hash,
		BlockIndex: index,
		BlockHash:  blockHash,
	}
}
