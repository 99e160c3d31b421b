package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/config"
	"modelmine/pkg/constants"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"
	"modelmine/pkg/metrics"

	"github.com/google/uuid"
)

// JobService accepts submissions: escrows the stake, assigns a node,
// persists the job and hands it to the queue.
type JobService struct {
	jobs          interfaces.JobRepository
	contributions interfaces.ContributionRepository
	tokens        *TokenLedger
	nodes         *NodeService
	queue         interfaces.JobQueue

	rewardPercent  int64
	bootstrapGrant int64
	defaultStake   int64
}

// NewJobService creates a new job service
func NewJobService(
	jobs interfaces.JobRepository,
	contributions interfaces.ContributionRepository,
	tokens *TokenLedger,
	nodes *NodeService,
	queue interfaces.JobQueue,
	cfg config.TokenConfig,
) *JobService {
	return &JobService{
		jobs:           jobs,
		contributions:  contributions,
		tokens:         tokens,
		nodes:          nodes,
		queue:          queue,
		rewardPercent:  cfg.RewardPercent,
		bootstrapGrant: cfg.BootstrapGrant,
		defaultStake:   cfg.DefaultStake,
	}
}

// Submit creates a PENDING job. Every error leaves no job and no debit behind.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error) {
	stake := s.defaultStake
	if req.TokenStake != nil {
		stake = *req.TokenStake
	}

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		return nil, model.Validationf("title is required")
	case strings.TrimSpace(req.SubmitterID) == "":
		return nil, model.Validationf("submitterId is required")
	case stake < 0:
		return nil, model.Validationf("tokenStake must not be negative")
	}

	if err := s.escrow(ctx, req.SubmitterID, stake); err != nil {
		return nil, err
	}

	job, err := s.createAndEnqueue(ctx, req, title, stake)
	if err != nil {
		return nil, err
	}

	metrics.JobsSubmittedTotal.Inc()
	logger.InfoCtx(ctx, "job submitted, job_id: %s, submitter: %s, stake: %d", job.ID, job.SubmitterID, stake)
	return job, nil
}

// escrow debits the stake, granting the bootstrap credit once if the balance is zero
func (s *JobService) escrow(ctx context.Context, submitterID string, stake int64) error {
	err := s.tokens.Debit(ctx, submitterID, stake)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		return err
	}

	granted, grantErr := s.tokens.GrantIfZero(ctx, submitterID, s.bootstrapGrant)
	if grantErr != nil {
		return grantErr
	}
	if !granted {
		return err
	}

	logger.InfoCtx(ctx, "bootstrap grant credited, user: %s, amount: %d", submitterID, s.bootstrapGrant)
	return s.tokens.Debit(ctx, submitterID, stake)
}

func (s *JobService) createAndEnqueue(ctx context.Context, req *model.SubmitRequest, title string, stake int64) (*model.Job, error) {
	now := time.Now()
	job := &model.Job{
		ID:          uuid.New().String(),
		Title:       title,
		Description: req.Description,
		Config:      req.Config,
		Status:      constants.JobStatusPending,
		TokenStake:  stake,
		TokenReward: model.ComputeReward(stake, s.rewardPercent),
		SubmitterID: req.SubmitterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if job.Config == nil {
		job.Config = map[string]interface{}{}
	}

	// Concurrent submissions may pick the same node; there is no reservation
	node, err := s.nodes.PickOldestActive(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "node assignment skipped: %v", err)
	}
	if node != nil {
		nodeID := node.ID
		job.AssignedNodeID = &nodeID
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		s.refund(ctx, job)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		s.refund(ctx, job)
		msg := "enqueue failed: " + err.Error()
		completed := time.Now()
		if uerr := s.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusPending, constants.JobStatusFailed,
			model.JobUpdate{Error: &msg, CompletedAt: &completed}); uerr != nil {
			logger.ErrorCtx(ctx, "failed to mark unqueued job failed, job_id: %s, error: %v", job.ID, uerr)
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, nil
}

func (s *JobService) refund(ctx context.Context, job *model.Job) {
	if err := s.tokens.Credit(ctx, job.SubmitterID, job.TokenStake); err != nil {
		logger.ErrorCtx(ctx, "failed to refund stake, job_id: %s, submitter: %s, amount: %d, error: %v",
			job.ID, job.SubmitterID, job.TokenStake, err)
	}
}

// Get returns a job or ErrNotFound
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, model.NotFoundf("job %s", jobID)
	}
	return job, nil
}

// Detail returns a job with its contributions
func (s *JobService) Detail(ctx context.Context, jobID string) (*model.JobDetail, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	contributions, err := s.contributions.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	if contributions == nil {
		contributions = []*model.Contribution{}
	}
	return &model.JobDetail{Job: job, Contributions: contributions}, nil
}

// ListBySubmitter returns the submitter's jobs, newest first
func (s *JobService) ListBySubmitter(ctx context.Context, submitterID string) ([]*model.Job, error) {
	if submitterID == "" {
		return nil, model.Validationf("userId is required")
	}
	return s.jobs.ListBySubmitter(ctx, submitterID)
}

// RecoverPending re-enqueues PENDING jobs created before cutoff
func (s *JobService) RecoverPending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	jobs, err := s.jobs.ListByStatus(ctx, constants.JobStatusPending, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	n := 0
	for _, job := range jobs {
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			logger.WarnCtx(ctx, "failed to re-enqueue pending job, job_id: %s, error: %v", job.ID, err)
			continue
		}
		n++
	}
	return n, nil
}
