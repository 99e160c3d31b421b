package model

import (
	"encoding/json"
	"time"

	"modelmine/pkg/constants"
)

// Job is one unit of work submitted by a client and executed by the worker pool.
type Job struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description,omitempty"`
	Config         map[string]interface{} `json:"config"`
	Status         constants.JobStatus    `json:"status"`
	Progress       int                    `json:"progress"`
	TokenStake     int64                  `json:"tokenStake"`
	TokenReward    int64                  `json:"tokenReward"`
	SubmitterID    string                 `json:"submitterId"`
	AssignedNodeID *string                `json:"assignedNodeId"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
	StartedAt      *time.Time             `json:"startedAt,omitempty"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
}

// NetworkFee is the part of the stake not paid out as reward. It is computed
// for bookkeeping only and never credited to any account.
func (j *Job) NetworkFee() int64 {
	return j.TokenStake - j.TokenReward
}

// HasAssignedNode reports whether a node was picked at submission time.
func (j *Job) HasAssignedNode() bool {
	return j.AssignedNodeID != nil && *j.AssignedNodeID != ""
}

// ToJSON converts job to JSON bytes
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// ComputeReward returns floor(stake * percent / 100).
func ComputeReward(stake, percent int64) int64 {
	if stake <= 0 || percent <= 0 {
		return 0
	}
	return stake * percent / 100
}

// ProgressAt returns round(100*step/totalSteps).
func ProgressAt(step, totalSteps int) int {
	if totalSteps <= 0 {
		return 100
	}
	return (200*step + totalSteps) / (2 * totalSteps)
}

var jobTransitions = map[constants.JobStatus][]constants.JobStatus{
	constants.JobStatusPending: {constants.JobStatusRunning, constants.JobStatusFailed},
	constants.JobStatusRunning: {constants.JobStatusCompleted, constants.JobStatusFailed},
}

// CanTransition reports whether the job state machine allows from -> to.
func CanTransition(from, to constants.JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobUpdate carries the optional fields written together with a status change.
type JobUpdate struct {
	Progress    *int
	Result      map[string]interface{}
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SubmitRequest submit job request
type SubmitRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Config      map[string]interface{} `json:"config" binding:"required"`
	SubmitterID string                 `json:"submitterId" binding:"required"`
	TokenStake  *int64                 `json:"tokenStake"`
}

// JobDetail is a job together with the contributions it produced.
type JobDetail struct {
	*Job
	Contributions []*Contribution `json:"contributions"`
}
