package model

import "time"

// User is a job submitter. Users are provisioned outside the coordinator.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	TokenBalance int64     `json:"tokenBalance"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateUserRequest create user request
type CreateUserRequest struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	TokenBalance int64  `json:"tokenBalance"`
}
