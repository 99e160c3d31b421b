package model

import (
	"time"

	"modelmine/pkg/constants"
)

// Node is a volunteer compute node.
type Node struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Status       constants.NodeStatus   `json:"status"`
	LastSeenAt   *time.Time             `json:"lastSeen"`
	TokenBalance int64                  `json:"tokenBalance"`
	TotalEarned  int64                  `json:"totalEarned"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// IsActive is the liveness predicate: ONLINE and heard from within window.
// A stale node keeps its stored status; only this check treats it as unavailable.
func (n *Node) IsActive(now time.Time, window time.Duration) bool {
	if n.Status != constants.NodeStatusOnline || n.LastSeenAt == nil {
		return false
	}
	return now.Sub(*n.LastSeenAt) < window
}

// RegisterNodeRequest register node request
type RegisterNodeRequest struct {
	Name string `json:"name" binding:"required"`
}

// HeartbeatRequest node heartbeat request
type HeartbeatRequest struct {
	NodeID  string                 `json:"nodeId" binding:"required"`
	Metrics map[string]interface{} `json:"metrics" binding:"required"`
}

// NodeSummary is the per-node row of the network overview.
type NodeSummary struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Status       string                 `json:"status"`
	Active       bool                   `json:"active"`
	JobsHandled  int64                  `json:"jobsHandled"`
	TokensEarned int64                  `json:"tokensEarned"`
	TokenBalance int64                  `json:"tokenBalance"`
	LastSeenAt   *time.Time             `json:"lastSeen"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
}

// NetworkStats network overview
type NetworkStats struct {
	TotalNodes        int            `json:"totalNodes"`
	ActiveNodes       int            `json:"activeNodes"`
	CompletedJobs     int64          `json:"completedJobs"`
	RunningJobs       int64          `json:"runningJobs"`
	PendingJobs       int64          `json:"pendingJobs"`
	FailedJobs        int64          `json:"failedJobs"`
	AverageAccuracy   float64        `json:"averageAccuracy"`
	TotalTokensStaked int64          `json:"totalTokensStaked"`
	LedgerHeight      int64          `json:"ledgerHeight"`
	Nodes             []*NodeSummary `json:"nodes"`
}
