package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"memochain/internal/domain"

	"gorm.io/gorm"
)

// BlockRepository persists sealed blocks in postgres and serves as a ledger backend.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

func (r *BlockRepository) LoadBlocks(ctx context.Context) ([]domain.Block, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []BlockModel
	if err := r.db.WithContext(ctx).Order("block_index ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	blocks := make([]domain.Block, 0, len(models))
	for _, m := range models {
		var b domain.Block
		if err := json.Unmarshal(m.Body, &b); err != nil {
			return nil, fmt.Errorf("%w: block %d body: %v", domain.ErrIntegrity, m.BlockIndex, err)
		}
		if b.Index != m.BlockIndex || b.Hash != m.BlockHash {
			return nil, fmt.Errorf("%w: block %d row does not match its body", domain.ErrIntegrity, m.BlockIndex)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (r *BlockRepository) AppendBlock(ctx context.Context, block domain.Block) error {
	if r.db == nil {
		return errDBUnavailable
	}
	body, err := json.Marshal(block)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := BlockModel{
			BlockIndex:   block.Index,
			BlockHash:    block.Hash,
			PreviousHash: block.PreviousHash,
			SealedAt:     block.Timestamp,
			Body:         body,
			CreatedAt:    now,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for i, t := range block.Transactions {
			row := TransactionModel{
				BlockIndex:  block.Index,
				TxIndex:     i,
				DocHash:     t.Hash,
				StudentID:   t.StudentID,
				StudentName: t.StudentName,
				College:     t.College,
				CreatedAt:   now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Close is a no-op; the connection belongs to Store.
func (r *BlockRepository) Close() error {
	return nil
}

// Summary counts the stored blocks and the rows of the transaction projection.
func (r *BlockRepository) Summary(ctx context.Context) (blocks, txs int64, err error) {
	if r.db == nil {
		return 0, 0, errDBUnavailable
	}
	db := r.db.WithContext(ctx)
	if err := db.Model(&BlockModel{}).Count(&blocks).Error; err != nil {
		return 0, 0, err
	}
	if err := db.Model(&TransactionModel{}).Count(&txs).Error; err != nil {
		return 0, 0, err
	}
	return blocks, txs, nil
}
