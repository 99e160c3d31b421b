package model

import "time"

// Contribution MySQL model for contributions table
type Contribution struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ContributionID string    `gorm:"column:contribution_id;type:varchar(64);not null;uniqueIndex"`
	NodeID         string    `gorm:"column:node_id;type:varchar(64);not null;index"`
	JobID          string    `gorm:"column:job_id;type:varchar(64);not null;index"`
	TokensEarned   int64     `gorm:"column:tokens_earned;not null"`
	Details        JSONMap   `gorm:"column:details;type:json"`
	CreatedAt      time.Time `gorm:"column:created_at;type:datetime(3);not null"`
}

func (Contribution) TableName() string {
	return "contributions"
}
