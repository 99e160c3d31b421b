package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"modelmine/internal/model"
	"modelmine/internal/service"
	"modelmine/pkg/broadcast"
	"modelmine/pkg/config"
	"modelmine/pkg/constants"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/notification"
	"modelmine/pkg/store/memory"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedWorkload struct {
	failAt int
	block  chan struct{} // when set, Step waits on it and ignores ctx

	running int32
	peak    int32
}

func (w *scriptedWorkload) Step(ctx context.Context, _ *model.Job, step, _ int) error {
	n := atomic.AddInt32(&w.running, 1)
	defer atomic.AddInt32(&w.running, -1)
	for {
		old := atomic.LoadInt32(&w.peak)
		if n <= old || atomic.CompareAndSwapInt32(&w.peak, old, n) {
			break
		}
	}

	if w.block != nil {
		<-w.block
	}
	if w.failAt > 0 && step == w.failAt {
		return errors.New("injected failure")
	}
	return nil
}

func (w *scriptedWorkload) Result(_ *model.Job, totalSteps int) map[string]interface{} {
	return SimulatedWorkload{}.Result(nil, totalSteps)
}

type harness struct {
	repos    interfaces.Repositories
	tokens   *service.TokenLedger
	nodes    *service.NodeService
	ledger   *service.AuditLedger
	jobs     *service.JobService
	hub      *broadcast.Hub
	executor *Executor
	pool     *Pool
}

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string) error { return nil }
func (nopQueue) Start(interfaces.JobHandler) error     { return nil }
func (nopQueue) Stop()                                 {}

func newHarness(t *testing.T, workload Workload, cfg ExecutorConfig, queue interfaces.JobQueue) *harness {
	t.Helper()
	appCfg := config.DefaultConfig()
	repos := memory.NewRepositories()

	h := &harness{repos: repos, hub: broadcast.NewHub(64)}
	h.tokens = service.NewTokenLedger(repos.User, repos.Node)
	h.nodes = service.NewNodeService(repos.Node, nil, appCfg.Node.Window())
	h.ledger = service.NewAuditLedger(repos.Ledger, nil)
	if queue == nil {
		queue = nopQueue{}
	}
	h.jobs = service.NewJobService(repos.Job, repos.Contribution, h.tokens, h.nodes, queue, appCfg.Token)
	h.executor = NewExecutor(repos.Job, repos.Contribution, h.tokens, h.ledger, h.hub, workload, cfg)
	return h
}

func (h *harness) user(t *testing.T, id string, balance int64) {
	t.Helper()
	require.NoError(t, h.repos.User.Create(context.Background(), &model.User{ID: id, TokenBalance: balance}))
}

func (h *harness) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := h.tokens.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *harness) submit(t *testing.T, user string, stake int64) *model.Job {
	t.Helper()
	job, err := h.jobs.Submit(context.Background(), &model.SubmitRequest{
		Title: "job", Config: map[string]interface{}{}, SubmitterID: user, TokenStake: &stake,
	})
	require.NoError(t, err)
	return job
}

func collect(t *testing.T, sub interfaces.ProgressSubscription) []model.ProgressEvent {
	t.Helper()
	var events []model.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestExecutor_CompletesAndSettles(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 10}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	node, err := h.nodes.Register(ctx, "gpu")
	require.NoError(t, err)

	prior, err := h.ledger.Append(ctx, "earlier", map[string]interface{}{}, time.Now())
	require.NoError(t, err)

	job := h.submit(t, "alice", 100)
	assert.Equal(t, int64(900), h.balance(t, "alice"))

	sub := h.hub.Subscribe(job.ID)
	require.NoError(t, h.executor.Execute(ctx, job.ID))
	events := collect(t, sub)

	var progress []int
	for _, ev := range events {
		progress = append(progress, *ev.Progress)
	}
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 100}, progress)
	last := events[len(events)-1]
	assert.Equal(t, constants.JobStatusCompleted, last.Status)
	assert.Equal(t, 94.7, last.Result["accuracy"])

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.NotNil(t, stored.CompletedAt)

	gotNode, err := h.nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), gotNode.TokenBalance)
	assert.Equal(t, int64(80), gotNode.TotalEarned)

	detail, err := h.jobs.Detail(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, detail.Contributions, 1)
	c := detail.Contributions[0]
	assert.Equal(t, int64(80), c.TokensEarned)
	assert.Equal(t, int64(80), c.Details["reward"])
	assert.Equal(t, int64(20), c.Details["networkFee"])

	head, err := h.repos.Ledger.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, head.Data.JobID)
	require.NotNil(t, head.PrevHash)
	assert.Equal(t, prior.Hash, *head.PrevHash)

	// Stake is never returned on success
	assert.Equal(t, int64(900), h.balance(t, "alice"))
}

func TestExecutor_FailureAtStepFiveRefunds(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{failAt: 5}, ExecutorConfig{TotalSteps: 10}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	node, err := h.nodes.Register(ctx, "gpu")
	require.NoError(t, err)

	job := h.submit(t, "alice", 100)
	sub := h.hub.Subscribe(job.ID)

	err = h.executor.Execute(ctx, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExecution)

	events := collect(t, sub)
	last := events[len(events)-1]
	assert.Equal(t, constants.JobStatusFailed, last.Status)
	assert.Contains(t, last.Error, "injected failure")
	assert.Equal(t, 40, *events[len(events)-2].Progress)

	assert.Equal(t, int64(1000), h.balance(t, "alice"))

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, stored.Status)
	assert.Nil(t, stored.Result)

	head, err := h.repos.Ledger.Head(ctx)
	require.NoError(t, err)
	assert.Nil(t, head, "no block for a failed job")

	gotNode, err := h.nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Zero(t, gotNode.TokenBalance)
}

func TestExecutor_UnassignedJobCompletesWithoutContribution(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 3}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)

	job := h.submit(t, "alice", 100)
	require.Nil(t, job.AssignedNodeID)
	require.NoError(t, h.executor.Execute(ctx, job.ID))

	detail, err := h.jobs.Detail(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, detail.Status)
	assert.Empty(t, detail.Contributions)

	head, err := h.repos.Ledger.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, job.ID, head.Data.JobID)
}

func TestExecutor_MissingJobIsSurfaced(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 1}, nil)
	err := h.executor.Execute(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestExecutor_NoDoubleDispatch(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, &scriptedWorkload{block: block}, ExecutorConfig{TotalSteps: 2}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	job := h.submit(t, "alice", 100)

	firstDone := make(chan error, 1)
	go func() { firstDone <- h.executor.Execute(ctx, job.ID) }()

	require.Eventually(t, func() bool {
		j, _ := h.repos.Job.Get(ctx, job.ID)
		return j.Status == constants.JobStatusRunning
	}, time.Second, 5*time.Millisecond)

	err := h.executor.Execute(ctx, job.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyDispatched)

	close(block)
	require.NoError(t, <-firstDone)

	// Re-dispatching a finished job neither runs nor refunds it
	err = h.executor.Execute(ctx, job.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyDispatched)
	assert.Equal(t, int64(900), h.balance(t, "alice"))
}

func TestExecutor_StepTimeoutFailsJob(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := newHarness(t, &scriptedWorkload{block: block}, ExecutorConfig{TotalSteps: 10, StepTimeout: 20 * time.Millisecond}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	job := h.submit(t, "alice", 250)

	err := h.executor.Execute(ctx, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExecution)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, int64(1000), h.balance(t, "alice"))
	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, stored.Status)
}

func TestExecutor_PoolBoundsRunningJobsAndChainsLedger(t *testing.T) {
	const poolSize = 5
	workload := &scriptedWorkload{}
	pool := NewPool(poolSize)
	h := newHarness(t, workload, ExecutorConfig{TotalSteps: 10}, pool)
	ctx := context.Background()
	h.user(t, "alice", 10_000)
	_, err := h.nodes.Register(ctx, "gpu")
	require.NoError(t, err)

	var running, peak int32
	var wg sync.WaitGroup
	const jobs = 12
	wg.Add(jobs)
	require.NoError(t, pool.Start(func(ctx context.Context, jobID string) error {
		defer wg.Done()
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		return h.executor.Execute(ctx, jobID)
	}))
	defer pool.Stop()

	for i := 0; i < jobs; i++ {
		h.submit(t, "alice", 100)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(poolSize))
	assert.LessOrEqual(t, atomic.LoadInt32(&workload.peak), int32(poolSize))

	completed, err := h.repos.Job.CountByStatus(ctx, constants.JobStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(jobs), completed)

	report, err := h.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, int64(jobs), report.Blocks)
	assert.Equal(t, int64(10_000-jobs*100), h.balance(t, "alice"))
}

func TestExecutor_RefundExactnessProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a failed job returns the submitter to the pre-submit balance", prop.ForAll(
		func(balance, stake int64, failAt int, assigned bool) bool {
			h := newHarness(t, &scriptedWorkload{failAt: failAt}, ExecutorConfig{TotalSteps: 10}, nil)
			ctx := context.Background()
			user := fmt.Sprintf("u-%d", balance)
			h.user(t, user, balance)
			if assigned {
				if _, err := h.nodes.Register(ctx, "n"); err != nil {
					return false
				}
			}

			job, err := h.jobs.Submit(ctx, &model.SubmitRequest{
				Title: "p", Config: map[string]interface{}{}, SubmitterID: user, TokenStake: &stake,
			})
			if err != nil {
				return false
			}
			if err := h.executor.Execute(ctx, job.ID); !errors.Is(err, model.ErrExecution) {
				return false
			}
			return h.balance(t, user) == balance
		},
		gen.Int64Range(1000, 100_000),
		gen.Int64Range(0, 1000),
		gen.IntRange(1, 10),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

type conflictingLedger struct {
	interfaces.LedgerRepository
}

func (conflictingLedger) Append(context.Context, *model.LedgerBlock) error {
	return model.ErrLedgerWriteConflict
}

type recordingAlarm struct {
	raised chan notification.Alarm
}

func (a *recordingAlarm) Raise(_ context.Context, alarm notification.Alarm) error {
	a.raised <- alarm
	return nil
}

func TestExecutor_LedgerConflictKeepsJobCompletedAndRaisesAlarm(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 2}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	_, err := h.nodes.Register(ctx, "gpu")
	require.NoError(t, err)

	ledger := service.NewAuditLedger(conflictingLedger{h.repos.Ledger}, nil)
	executor := NewExecutor(h.repos.Job, h.repos.Contribution, h.tokens, ledger, h.hub, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 2})
	alarm := &recordingAlarm{raised: make(chan notification.Alarm, 1)}
	executor.SetAlarm(alarm)

	job := h.submit(t, "alice", 100)
	sub := h.hub.Subscribe(job.ID)
	require.NoError(t, executor.Execute(ctx, job.ID))

	events := collect(t, sub)
	assert.Equal(t, constants.JobStatusCompleted, events[len(events)-1].Status)

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, stored.Status)

	select {
	case a := <-alarm.raised:
		assert.Equal(t, job.ID, a.JobID)
		assert.Equal(t, "Ledger write conflict", a.Title)
	case <-time.After(time.Second):
		t.Fatal("no alarm raised")
	}
}

type failingLedger struct {
	interfaces.LedgerRepository
}

func (failingLedger) Append(context.Context, *model.LedgerBlock) error {
	return errors.New("disk full")
}

func TestExecutor_LedgerFailureFailsBeforeSettlement(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 10}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	node, err := h.nodes.Register(ctx, "gpu")
	require.NoError(t, err)

	ledger := service.NewAuditLedger(failingLedger{h.repos.Ledger}, nil)
	executor := NewExecutor(h.repos.Job, h.repos.Contribution, h.tokens, ledger, h.hub, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 10})

	job := h.submit(t, "alice", 100)
	require.NotNil(t, job.AssignedNodeID)
	sub := h.hub.Subscribe(job.ID)

	err = executor.Execute(ctx, job.ID)
	assert.ErrorIs(t, err, model.ErrExecution)
	assert.Contains(t, err.Error(), "disk full")

	events := collect(t, sub)
	last := events[len(events)-1]
	assert.Equal(t, constants.JobStatusFailed, last.Status)
	for _, ev := range events {
		assert.NotEqual(t, constants.JobStatusCompleted, ev.Status)
	}

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, stored.Status)
	assert.Empty(t, stored.Result)

	// Full refund and nothing paid out, so no tokens are created
	assert.Equal(t, int64(1000), h.balance(t, "alice"))
	gotNode, err := h.nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Zero(t, gotNode.TokenBalance)
	assert.Zero(t, gotNode.TotalEarned)

	detail, err := h.jobs.Detail(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Contributions)

	head, err := h.repos.Ledger.Head(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)
}

type failingContributions struct {
	interfaces.ContributionRepository
}

func (failingContributions) Create(context.Context, *model.Contribution) error {
	return errors.New("contributions table locked")
}

func TestExecutor_SettlementFailureKeepsJobCompleted(t *testing.T) {
	h := newHarness(t, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 2}, nil)
	ctx := context.Background()
	h.user(t, "alice", 1000)
	node, err := h.nodes.Register(ctx, "gpu")
	require.NoError(t, err)

	executor := NewExecutor(h.repos.Job, failingContributions{h.repos.Contribution}, h.tokens, h.ledger, h.hub, &scriptedWorkload{}, ExecutorConfig{TotalSteps: 2})
	alarm := &recordingAlarm{raised: make(chan notification.Alarm, 1)}
	executor.SetAlarm(alarm)

	job := h.submit(t, "alice", 100)
	require.NoError(t, executor.Execute(ctx, job.ID))

	stored, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.Result)

	// The stake is spent exactly once: reward to the node, nothing back to alice
	assert.Equal(t, int64(900), h.balance(t, "alice"))
	gotNode, err := h.nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), gotNode.TokenBalance)

	head, err := h.repos.Ledger.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, job.ID, head.Data.JobID)

	select {
	case a := <-alarm.raised:
		assert.Equal(t, job.ID, a.JobID)
		assert.Equal(t, "Node reward unsettled", a.Title)
	case <-time.After(time.Second):
		t.Fatal("no alarm raised")
	}
}
