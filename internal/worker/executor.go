package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"modelmine/internal/model"
	"modelmine/internal/service"
	"modelmine/pkg/constants"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"
	"modelmine/pkg/metrics"
	"modelmine/pkg/notification"

	"github.com/google/uuid"
)

// ExecutorConfig execution parameters
type ExecutorConfig struct {
	TotalSteps  int
	StepTimeout time.Duration // 0 disables the per-step deadline
}

// AlarmRaiser notifies operators of incidents that need manual attention
type AlarmRaiser interface {
	Raise(ctx context.Context, alarm notification.Alarm) error
}

// Executor drives one job from PENDING to COMPLETED or FAILED and settles
// its tokens. At most one Execute runs per job id at any time.
type Executor struct {
	jobs          interfaces.JobRepository
	contributions interfaces.ContributionRepository
	tokens        *service.TokenLedger
	ledger        *service.AuditLedger
	publisher     interfaces.ProgressPublisher
	workload      Workload
	cfg           ExecutorConfig
	alarm         AlarmRaiser

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewExecutor creates a job executor
func NewExecutor(
	jobs interfaces.JobRepository,
	contributions interfaces.ContributionRepository,
	tokens *service.TokenLedger,
	ledger *service.AuditLedger,
	publisher interfaces.ProgressPublisher,
	workload Workload,
	cfg ExecutorConfig,
) *Executor {
	if cfg.TotalSteps <= 0 {
		cfg.TotalSteps = constants.DefaultTotalSteps
	}
	return &Executor{
		jobs:          jobs,
		contributions: contributions,
		tokens:        tokens,
		ledger:        ledger,
		publisher:     publisher,
		workload:      workload,
		cfg:           cfg,
		inFlight:      make(map[string]struct{}),
	}
}

// SetAlarm routes ledger conflicts and failed refunds to an operator channel
func (e *Executor) SetAlarm(alarm AlarmRaiser) {
	e.alarm = alarm
}

// Execute runs a dequeued job. It matches interfaces.JobHandler.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	if !e.claim(jobID) {
		return fmt.Errorf("job %s is executing: %w", jobID, model.ErrAlreadyDispatched)
	}
	defer e.release(jobID)

	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job == nil {
		// Queue and store disagree; surfaced, not retried
		return model.NotFoundf("queued job %s", jobID)
	}
	if job.Status != constants.JobStatusPending {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, model.ErrAlreadyDispatched)
	}

	started := time.Now()
	zero := 0
	err = e.jobs.UpdateStatus(ctx, jobID, constants.JobStatusPending, constants.JobStatusRunning,
		model.JobUpdate{Progress: &zero, StartedAt: &started})
	if errors.Is(err, model.ErrInvalidTransition) {
		return fmt.Errorf("job %s left PENDING: %w", jobID, model.ErrAlreadyDispatched)
	}
	if err != nil {
		return e.fail(ctx, job, constants.JobStatusPending, started, err)
	}

	metrics.RunningJobs.Inc()
	defer metrics.RunningJobs.Dec()

	logger.InfoCtx(ctx, "job started, job_id: %s, node: %s", jobID, nodeLabel(job))
	e.publish(model.ProgressEvent{JobID: jobID, Status: constants.JobStatusRunning, Progress: model.IntPtr(0)})

	total := e.cfg.TotalSteps
	for step := 1; step <= total; step++ {
		if err := e.runStep(ctx, job, step, total); err != nil {
			return e.fail(ctx, job, constants.JobStatusRunning, started, err)
		}

		progress := model.ProgressAt(step, total)
		if err := e.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
			return e.fail(ctx, job, constants.JobStatusRunning, started, err)
		}
		e.publish(model.ProgressEvent{
			JobID:      jobID,
			Status:     constants.JobStatusRunning,
			Progress:   &progress,
			Step:       step,
			TotalSteps: total,
		})
	}

	return e.complete(ctx, job, started)
}

// complete commits the run. The block is appended while the job is still
// RUNNING, so a ledger error fails the job before any result or reward is
// written. Once COMPLETED is stored the job is final and settlement errors
// go to operators instead of flipping it.
func (e *Executor) complete(ctx context.Context, job *model.Job, started time.Time) error {
	result := e.workload.Result(job, e.cfg.TotalSteps)
	completedAt := time.Now()
	hundred := 100

	block, err := e.ledger.Append(ctx, job.ID, result, completedAt)
	if err != nil {
		if !errors.Is(err, model.ErrLedgerWriteConflict) {
			return e.fail(ctx, job, constants.JobStatusRunning, started, fmt.Errorf("failed to append ledger block: %w", err))
		}
		// Operational alarm only, the job still completes
		logger.ErrorCtx(ctx, "job completing without ledger block, job_id: %s, error: %v", job.ID, err)
		e.raise(ctx, "Ledger write conflict", job.ID, err.Error())
	}

	err = e.jobs.UpdateStatus(ctx, job.ID, constants.JobStatusRunning, constants.JobStatusCompleted,
		model.JobUpdate{Progress: &hundred, Result: result, CompletedAt: &completedAt})
	if err != nil {
		if block != nil {
			e.raise(ctx, "Ledger block for failed job", job.ID,
				fmt.Sprintf("block %s at height %d records a job that could not be marked completed: %v", block.ID, block.Height, err))
		}
		return e.fail(ctx, job, constants.JobStatusRunning, started, err)
	}

	if job.HasAssignedNode() {
		if err := e.settleReward(ctx, job, completedAt); err != nil {
			logger.ErrorCtx(ctx, "reward settlement failed, job_id: %s, node: %s, amount: %d, error: %v",
				job.ID, *job.AssignedNodeID, job.TokenReward, err)
			e.raise(ctx, "Node reward unsettled", job.ID,
				fmt.Sprintf("node %s reward of %d tokens: %v", *job.AssignedNodeID, job.TokenReward, err))
		}
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(constants.JobStatusCompleted)).Inc()
	metrics.JobDurationSeconds.WithLabelValues(string(constants.JobStatusCompleted)).Observe(time.Since(started).Seconds())

	e.publish(model.ProgressEvent{
		JobID:    job.ID,
		Status:   constants.JobStatusCompleted,
		Progress: &hundred,
		Result:   result,
	})
	logger.InfoCtx(ctx, "job completed, job_id: %s, reward: %d", job.ID, job.TokenReward)
	return nil
}

func (e *Executor) settleReward(ctx context.Context, job *model.Job, completedAt time.Time) error {
	nodeID := *job.AssignedNodeID
	if err := e.tokens.CreditNode(ctx, nodeID, job.TokenReward); err != nil {
		return fmt.Errorf("failed to credit node %s: %w", nodeID, err)
	}

	contribution := &model.Contribution{
		ID:           uuid.New().String(),
		NodeID:       nodeID,
		JobID:        job.ID,
		TokensEarned: job.TokenReward,
		Details: map[string]interface{}{
			"reward":      job.TokenReward,
			"networkFee":  job.NetworkFee(),
			"completedAt": completedAt.UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: completedAt,
	}
	if err := e.contributions.Create(ctx, contribution); err != nil {
		return fmt.Errorf("failed to record contribution: %w", err)
	}
	return nil
}

// runStep runs one workload step under the optional per-step deadline. A
// step that ignores its context still releases the worker at the deadline.
func (e *Executor) runStep(ctx context.Context, job *model.Job, step, total int) error {
	if e.cfg.StepTimeout <= 0 {
		if err := e.workload.Step(ctx, job, step, total); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		return nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.workload.Step(stepCtx, job, step, total) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		return nil
	case <-stepCtx.Done():
		return fmt.Errorf("step %d exceeded %s: %w", step, e.cfg.StepTimeout, stepCtx.Err())
	}
}

// fail refunds the full stake, marks the job FAILED and publishes the failure.
func (e *Executor) fail(ctx context.Context, job *model.Job, from constants.JobStatus, started time.Time, cause error) error {
	// Settlement must finish even if the run was cancelled
	ctx = context.WithoutCancel(ctx)

	if err := e.tokens.Credit(ctx, job.SubmitterID, job.TokenStake); err != nil {
		logger.ErrorCtx(ctx, "failed to refund stake, job_id: %s, submitter: %s, amount: %d, error: %v",
			job.ID, job.SubmitterID, job.TokenStake, err)
		e.raise(ctx, "Stake refund failed", job.ID,
			fmt.Sprintf("submitter %s is owed %d tokens: %v", job.SubmitterID, job.TokenStake, err))
	}

	msg := cause.Error()
	failedAt := time.Now()
	if err := e.jobs.UpdateStatus(ctx, job.ID, from, constants.JobStatusFailed,
		model.JobUpdate{Error: &msg, CompletedAt: &failedAt}); err != nil {
		logger.ErrorCtx(ctx, "failed to mark job failed, job_id: %s, from: %s, error: %v", job.ID, from, err)
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(constants.JobStatusFailed)).Inc()
	metrics.JobDurationSeconds.WithLabelValues(string(constants.JobStatusFailed)).Observe(time.Since(started).Seconds())

	e.publish(model.ProgressEvent{JobID: job.ID, Status: constants.JobStatusFailed, Error: msg})
	logger.WarnCtx(ctx, "job failed, job_id: %s, refunded: %d, error: %s", job.ID, job.TokenStake, msg)

	return fmt.Errorf("%w: job %s: %w", model.ErrExecution, job.ID, cause)
}

// raise sends an alarm without holding up the worker
func (e *Executor) raise(ctx context.Context, title, jobID, detail string) {
	if e.alarm == nil {
		return
	}
	alarm := notification.Alarm{Title: title, JobID: jobID, Detail: detail, RaisedAt: time.Now()}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := e.alarm.Raise(ctx, alarm); err != nil {
			logger.WarnCtx(ctx, "failed to raise alarm %q, job_id: %s, error: %v", title, jobID, err)
		}
	}()
}

func (e *Executor) publish(event model.ProgressEvent) {
	if e.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.publisher.Publish(event)
}

func (e *Executor) claim(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[jobID]; ok {
		return false
	}
	e.inFlight[jobID] = struct{}{}
	return true
}

func (e *Executor) release(jobID string) {
	e.mu.Lock()
	delete(e.inFlight, jobID)
	e.mu.Unlock()
}

func nodeLabel(job *model.Job) string {
	if job.HasAssignedNode() {
		return *job.AssignedNodeID
	}
	return "unassigned"
}
