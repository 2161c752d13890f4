package db

import "time"

type BlockModel struct {
	BlockIndex   int64     `gorm:"column:block_index;primaryKey;autoIncrement:false"`
	BlockHash    string    `gorm:"column:block_hash;uniqueIndex;not null"`
	PreviousHash string    `gorm:"column:previous_hash;not null"`
	SealedAt     string    `gorm:"column:sealed_at;not null"`
	Body         []byte    `gorm:"column:body;type:jsonb;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (BlockModel) TableName() string { return "ledger_blocks" }

// TransactionModel is a query projection of one sealed transaction. The block
// body stays authoritative.
type TransactionModel struct {
	ID          int64     `gorm:"primaryKey"`
	BlockIndex  int64     `gorm:"column:block_index;index;not null"`
	TxIndex     int       `gorm:"column:tx_index;not null"`
	DocHash     string    `gorm:"column:doc_hash;uniqueIndex;not null"`
	StudentID   string    `gorm:"column:student_id;index;not null"`
	StudentName string    `gorm:"column:student_name;not null"`
	College     string    `gorm:"column:college;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (TransactionModel) TableName() string { return "ledger_transactions" }

type StudentModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	College    string `gorm:"not null"`
	NationalID *string
	UpdatedAt  time.Time `gorm:"not null"`
}

func (StudentModel) TableName() string { return "students" }
