package model

import "time"

// Node MySQL model for nodes table
type Node struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	NodeID       string     `gorm:"column:node_id;type:varchar(64);not null;uniqueIndex"`
	Name         string     `gorm:"column:name;type:varchar(255);not null"`
	Status       string     `gorm:"column:status;type:varchar(20);not null;default:ONLINE;index:idx_status_last_seen,priority:1"`
	LastSeenAt   *time.Time `gorm:"column:last_seen_at;type:datetime(3);index:idx_status_last_seen,priority:2"`
	TokenBalance int64      `gorm:"column:token_balance;not null;default:0"`
	TotalEarned  int64      `gorm:"column:total_earned;not null;default:0"`
	Metrics      JSONMap    `gorm:"column:metrics;type:json"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:datetime(3);not null;index"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:datetime(3);not null"`
}

func (Node) TableName() string {
	return "nodes"
}
