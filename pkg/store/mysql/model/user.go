package model

import "time"

// User MySQL model for users table
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex"`
	Email        string    `gorm:"column:email;type:varchar(255)"`
	Name         string    `gorm:"column:name;type:varchar(255)"`
	TokenBalance int64     `gorm:"column:token_balance;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime(3);not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime(3);not null"`
}

func (User) TableName() string {
	return "users"
}
