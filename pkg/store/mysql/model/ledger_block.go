package model

import "time"

// LedgerBlock MySQL model for ledger_blocks table. The unique height index
// rejects a second block built on the same head.
type LedgerBlock struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	BlockID   string    `gorm:"column:block_id;type:varchar(64);not null;uniqueIndex"`
	Height    int64     `gorm:"column:height;not null;uniqueIndex:idx_height_unique"`
	PrevHash  *string   `gorm:"column:prev_hash;type:char(64)"`
	Data      JSONMap   `gorm:"column:data;type:json;not null"`
	Nonce     int64     `gorm:"column:nonce;not null"`
	Hash      string    `gorm:"column:hash;type:char(64);not null;uniqueIndex"`
	Timestamp time.Time `gorm:"column:timestamp;type:datetime(3);not null;index"`
}

func (LedgerBlock) TableName() string {
	return "ledger_blocks"
}
