package mysql

import (
	"context"
	"fmt"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
)

// JobRepository handles job persistence in MySQL
type JobRepository struct {
	ds *Datastore
}

// NewJobRepository creates a new job repository
func NewJobRepository(ds *Datastore) *JobRepository {
	return &JobRepository{ds: ds}
}

// Create creates a new job
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	row := FromJobDomain(job)
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var job Job
	err := r.ds.DB(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return ToJobDomain(&job), nil
}

// ListBySubmitter retrieves a submitter's jobs, newest first
func (r *JobRepository) ListBySubmitter(ctx context.Context, submitterID string) ([]*model.Job, error) {
	var rows []*Job
	err := r.ds.DB(ctx).
		Where("submitter_id = ?", submitterID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return toJobs(rows), nil
}

// ListByStatus retrieves jobs in status, oldest first
func (r *JobRepository) ListByStatus(ctx context.Context, status constants.JobStatus, createdBefore time.Time, limit int) ([]*model.Job, error) {
	query := r.ds.DB(ctx).Where("status = ?", string(status))
	if !createdBefore.IsZero() {
		query = query.Where("created_at < ?", createdBefore)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []*Job
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	return toJobs(rows), nil
}

// UpdateStatus updates job status with CAS (Compare-And-Swap) on the current status
// Returns ErrInvalidTransition if the job is missing or not in from
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, from, to constants.JobStatus, update model.JobUpdate) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}

	result := r.ds.DB(ctx).Model(&Job{}).
		Where("job_id = ? AND status = ?", jobID, string(from)).
		Updates(jobUpdateFields(to, update))
	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not in %s", model.ErrInvalidTransition, jobID, from)
	}
	return nil
}

// UpdateProgress updates the progress of a running job
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	result := r.ds.DB(ctx).Model(&Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update job progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.NotFoundf("job %s", jobID)
	}
	return nil
}

// CountByStatus counts jobs by status
func (r *JobRepository) CountByStatus(ctx context.Context, status constants.JobStatus) (int64, error) {
	var count int64
	err := r.ds.DB(ctx).Model(&Job{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// CountByNode counts assigned jobs per node
func (r *JobRepository) CountByNode(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		AssignedNodeID string
		Count          int64
	}
	err := r.ds.DB(ctx).Model(&Job{}).
		Select("assigned_node_id, COUNT(*) AS count").
		Where("assigned_node_id IS NOT NULL").
		Group("assigned_node_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by node: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.AssignedNodeID] = row.Count
	}
	return counts, nil
}

// SumStake sums the stake of every job
func (r *JobRepository) SumStake(ctx context.Context) (int64, error) {
	var total int64
	err := r.ds.DB(ctx).Model(&Job{}).
		Select("COALESCE(SUM(token_stake), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum stakes: %w", err)
	}
	return total, nil
}

func toJobs(rows []*Job) []*model.Job {
	jobs := make([]*model.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, ToJobDomain(row))
	}
	return jobs
}
