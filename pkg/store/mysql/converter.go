package mysql

import (
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
)

// ToUserDomain converts MySQL User to domain User model
func ToUserDomain(u *User) *model.User {
	if u == nil {
		return nil
	}
	return &model.User{
		ID:           u.UserID,
		Email:        u.Email,
		Name:         u.Name,
		TokenBalance: u.TokenBalance,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// FromUserDomain converts domain User model to MySQL User
func FromUserDomain(u *model.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		UserID:       u.ID,
		Email:        u.Email,
		Name:         u.Name,
		TokenBalance: u.TokenBalance,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// ToNodeDomain converts MySQL Node to domain Node model
func ToNodeDomain(n *Node) *model.Node {
	if n == nil {
		return nil
	}
	return &model.Node{
		ID:           n.NodeID,
		Name:         n.Name,
		Status:       constants.NodeStatus(n.Status),
		LastSeenAt:   n.LastSeenAt,
		TokenBalance: n.TokenBalance,
		TotalEarned:  n.TotalEarned,
		Metrics:      map[string]interface{}(n.Metrics),
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

// FromNodeDomain converts domain Node model to MySQL Node
func FromNodeDomain(n *model.Node) *Node {
	if n == nil {
		return nil
	}
	return &Node{
		NodeID:       n.ID,
		Name:         n.Name,
		Status:       string(n.Status),
		LastSeenAt:   n.LastSeenAt,
		TokenBalance: n.TokenBalance,
		TotalEarned:  n.TotalEarned,
		Metrics:      JSONMap(n.Metrics),
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

// ToJobDomain converts MySQL Job to domain Job model
func ToJobDomain(j *Job) *model.Job {
	if j == nil {
		return nil
	}
	return &model.Job{
		ID:             j.JobID,
		Title:          j.Title,
		Description:    j.Description,
		Config:         map[string]interface{}(j.Config),
		Status:         constants.JobStatus(j.Status),
		Progress:       j.Progress,
		TokenStake:     j.TokenStake,
		TokenReward:    j.TokenReward,
		SubmitterID:    j.SubmitterID,
		AssignedNodeID: j.AssignedNodeID,
		Result:         map[string]interface{}(j.Result),
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

// FromJobDomain converts domain Job model to MySQL Job
func FromJobDomain(j *model.Job) *Job {
	if j == nil {
		return nil
	}
	return &Job{
		JobID:          j.ID,
		Title:          j.Title,
		Description:    j.Description,
		Config:         JSONMap(j.Config),
		Status:         string(j.Status),
		Progress:       j.Progress,
		TokenStake:     j.TokenStake,
		TokenReward:    j.TokenReward,
		SubmitterID:    j.SubmitterID,
		AssignedNodeID: j.AssignedNodeID,
		Result:         JSONMap(j.Result),
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

// jobUpdateFields converts a JobUpdate into a GORM column map
func jobUpdateFields(to constants.JobStatus, update model.JobUpdate) map[string]interface{} {
	fields := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if update.Progress != nil {
		fields["progress"] = *update.Progress
	}
	if update.Result != nil {
		fields["result"] = JSONMap(update.Result)
	}
	if update.Error != nil {
		fields["error"] = *update.Error
	}
	if update.StartedAt != nil {
		fields["started_at"] = *update.StartedAt
	}
	if update.CompletedAt != nil {
		fields["completed_at"] = *update.CompletedAt
	}
	return fields
}

// ToContributionDomain converts MySQL Contribution to domain Contribution model
func ToContributionDomain(c *Contribution) *model.Contribution {
	if c == nil {
		return nil
	}
	return &model.Contribution{
		ID:           c.ContributionID,
		NodeID:       c.NodeID,
		JobID:        c.JobID,
		TokensEarned: c.TokensEarned,
		Details:      map[string]interface{}(c.Details),
		CreatedAt:    c.CreatedAt,
	}
}

// FromContributionDomain converts domain Contribution model to MySQL Contribution
func FromContributionDomain(c *model.Contribution) *Contribution {
	if c == nil {
		return nil
	}
	return &Contribution{
		ContributionID: c.ID,
		NodeID:         c.NodeID,
		JobID:          c.JobID,
		TokensEarned:   c.TokensEarned,
		Details:        JSONMap(c.Details),
		CreatedAt:      c.CreatedAt,
	}
}

// ToLedgerBlockDomain converts MySQL LedgerBlock to domain LedgerBlock model
func ToLedgerBlockDomain(b *LedgerBlock) *model.LedgerBlock {
	if b == nil {
		return nil
	}
	entry := model.LedgerEntry{}
	if v, ok := b.Data["jobId"].(string); ok {
		entry.JobID = v
	}
	if v, ok := b.Data["result"].(map[string]interface{}); ok {
		entry.Result = v
	}
	if v, ok := b.Data["timestamp"].(string); ok {
		entry.Timestamp = v
	}
	return &model.LedgerBlock{
		ID:        b.BlockID,
		Height:    b.Height,
		PrevHash:  b.PrevHash,
		Data:      entry,
		Nonce:     b.Nonce,
		Hash:      b.Hash,
		Timestamp: b.Timestamp,
	}
}

// FromLedgerBlockDomain converts domain LedgerBlock model to MySQL LedgerBlock
func FromLedgerBlockDomain(b *model.LedgerBlock) *LedgerBlock {
	if b == nil {
		return nil
	}
	return &LedgerBlock{
		BlockID:  b.ID,
		Height:   b.Height,
		PrevHash: b.PrevHash,
		Data: JSONMap{
			"jobId":     b.Data.JobID,
			"result":    b.Data.Result,
			"timestamp": b.Data.Timestamp,
		},
		Nonce:     b.Nonce,
		Hash:      b.Hash,
		Timestamp: b.Timestamp,
	}
}
