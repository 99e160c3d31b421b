package mysql

import (
	"context"
	"fmt"
	"time"

	"modelmine/internal/model"
)

// ContributionRepository handles contribution records in MySQL
type ContributionRepository struct {
	ds *Datastore
}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository(ds *Datastore) *ContributionRepository {
	return &ContributionRepository{ds: ds}
}

// Create creates a new contribution
func (r *ContributionRepository) Create(ctx context.Context, c *model.Contribution) error {
	row := FromContributionDomain(c)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// ListByJob retrieves a job's contributions in creation order
func (r *ContributionRepository) ListByJob(ctx context.Context, jobID string) ([]*model.Contribution, error) {
	var rows []*Contribution
	err := r.ds.DB(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	out := make([]*model.Contribution, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToContributionDomain(row))
	}
	return out, nil
}
