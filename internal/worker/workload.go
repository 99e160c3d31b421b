package worker

import (
	"context"
	"time"

	"modelmine/internal/model"
)

// Workload is the unit of work executed step by step for a job.
type Workload interface {
	// Step runs step (1-based) of totalSteps.
	Step(ctx context.Context, job *model.Job, step, totalSteps int) error
	// Result builds the result payload after the last step.
	Result(job *model.Job, totalSteps int) map[string]interface{}
}

// SimulatedWorkload pauses for Interval per step and reports fixed training metrics.
type SimulatedWorkload struct {
	Interval time.Duration
}

func (w SimulatedWorkload) Step(ctx context.Context, _ *model.Job, _, _ int) error {
	if w.Interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w SimulatedWorkload) Result(_ *model.Job, totalSteps int) map[string]interface{} {
	return map[string]interface{}{
		"accuracy":    94.7,
		"loss":        0.052,
		"epochs":      totalSteps,
		"completedAt": time.Now().UTC().Format(time.RFC3339),
	}
}
