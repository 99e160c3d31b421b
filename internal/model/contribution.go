package model

import "time"

// Contribution links a node to a job it completed and the reward it earned.
type Contribution struct {
	ID           string                 `json:"id"`
	NodeID       string                 `json:"nodeId"`
	JobID        string                 `json:"jobId"`
	TokensEarned int64                  `json:"tokensEarned"`
	Details      map[string]interface{} `json:"details"`
	CreatedAt    time.Time              `json:"createdAt"`
}
