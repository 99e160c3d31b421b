package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/metrics"
)

// StatisticsService builds the network overview
type StatisticsService struct {
	jobs   interfaces.JobRepository
	nodes  *NodeService
	ledger *AuditLedger
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(jobs interfaces.JobRepository, nodes *NodeService, ledger *AuditLedger) *StatisticsService {
	return &StatisticsService{jobs: jobs, nodes: nodes, ledger: ledger}
}

// GetNetworkStats returns node, job and token totals with per-node summaries
func (s *StatisticsService) GetNetworkStats(ctx context.Context) (*model.NetworkStats, error) {
	nodes, err := s.nodes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	handled, err := s.jobs.CountByNode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by node: %w", err)
	}

	stats := &model.NetworkStats{
		TotalNodes: len(nodes),
		Nodes:      make([]*model.NodeSummary, 0, len(nodes)),
	}
	for _, n := range nodes {
		active := s.nodes.IsActive(n)
		if active {
			stats.ActiveNodes++
		}
		stats.Nodes = append(stats.Nodes, &model.NodeSummary{
			ID:           n.ID,
			Name:         n.Name,
			Status:       string(n.Status),
			Active:       active,
			JobsHandled:  handled[n.ID],
			TokensEarned: n.TotalEarned,
			TokenBalance: n.TokenBalance,
			LastSeenAt:   n.LastSeenAt,
			Metrics:      n.Metrics,
		})
	}

	counts := []struct {
		status constants.JobStatus
		dst    *int64
	}{
		{constants.JobStatusCompleted, &stats.CompletedJobs},
		{constants.JobStatusRunning, &stats.RunningJobs},
		{constants.JobStatusPending, &stats.PendingJobs},
		{constants.JobStatusFailed, &stats.FailedJobs},
	}
	for _, c := range counts {
		if *c.dst, err = s.jobs.CountByStatus(ctx, c.status); err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", c.status, err)
		}
	}

	if stats.TotalTokensStaked, err = s.jobs.SumStake(ctx); err != nil {
		return nil, fmt.Errorf("failed to sum stakes: %w", err)
	}
	if stats.AverageAccuracy, err = s.averageAccuracy(ctx); err != nil {
		return nil, err
	}
	if stats.LedgerHeight, err = s.ledger.Height(ctx); err != nil {
		return nil, fmt.Errorf("failed to read ledger height: %w", err)
	}

	return stats, nil
}

// RefreshGauges updates the active-node and ledger-height gauges
func (s *StatisticsService) RefreshGauges(ctx context.Context) error {
	active, err := s.nodes.ListActive(ctx)
	if err != nil {
		return err
	}
	height, err := s.ledger.Height(ctx)
	if err != nil {
		return err
	}
	metrics.ActiveNodes.Set(float64(len(active)))
	metrics.LedgerHeight.Set(float64(height))
	return nil
}

func (s *StatisticsService) averageAccuracy(ctx context.Context) (float64, error) {
	completed, err := s.jobs.ListByStatus(ctx, constants.JobStatusCompleted, time.Time{}, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list completed jobs: %w", err)
	}

	var sum float64
	var n int
	for _, job := range completed {
		if acc, ok := toFloat(job.Result["accuracy"]); ok {
			sum += acc
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return math.Round(sum/float64(n)*100) / 100, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
