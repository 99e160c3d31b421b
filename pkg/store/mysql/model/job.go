package model

import "time"

// Job MySQL model for jobs table
type Job struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	JobID          string     `gorm:"column:job_id;type:varchar(64);not null;uniqueIndex"`
	Title          string     `gorm:"column:title;type:varchar(255);not null"`
	Description    string     `gorm:"column:description;type:text"`
	Config         JSONMap    `gorm:"column:config;type:json"`
	Status         string     `gorm:"column:status;type:varchar(20);not null;index:idx_status_created,priority:1"`
	Progress       int        `gorm:"column:progress;not null;default:0"`
	TokenStake     int64      `gorm:"column:token_stake;not null;default:0"`
	TokenReward    int64      `gorm:"column:token_reward;not null;default:0"`
	SubmitterID    string     `gorm:"column:submitter_id;type:varchar(64);not null;index"`
	AssignedNodeID *string    `gorm:"column:assigned_node_id;type:varchar(64);index"`
	Result         JSONMap    `gorm:"column:result;type:json"`
	Error          string     `gorm:"column:error;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:datetime(3);not null;index:idx_status_created,priority:2"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:datetime(3);not null"`
	StartedAt      *time.Time `gorm:"column:started_at;type:datetime(3)"`
	CompletedAt    *time.Time `gorm:"column:completed_at;type:datetime(3)"`
}

func (Job) TableName() string {
	return "jobs"
}
