package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_DebitCredit(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	require.NoError(t, repos.User.Create(ctx, &model.User{ID: "u1", TokenBalance: 100}))

	require.NoError(t, repos.User.Debit(ctx, "u1", 60))
	err := repos.User.Debit(ctx, "u1", 50)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	require.NoError(t, repos.User.Credit(ctx, "u1", 10))
	u, err := repos.User.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.TokenBalance)

	assert.ErrorIs(t, repos.User.Debit(ctx, "missing", 1), model.ErrNotFound)
	assert.ErrorIs(t, repos.User.Credit(ctx, "missing", 1), model.ErrNotFound)

	missing, err := repos.User.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_ConcurrentDebitNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	require.NoError(t, repos.User.Create(ctx, &model.User{ID: "u1", TokenBalance: 1000}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repos.User.Debit(ctx, "u1", 30); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	u, err := repos.User.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 33, succeeded)
	assert.Equal(t, int64(10), u.TokenBalance)
}

func TestUserRepository_GrantIfZero(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	require.NoError(t, repos.User.Create(ctx, &model.User{ID: "zero"}))
	require.NoError(t, repos.User.Create(ctx, &model.User{ID: "rich", TokenBalance: 5}))

	granted, err := repos.User.GrantIfZero(ctx, "zero", 1000)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = repos.User.GrantIfZero(ctx, "zero", 1000)
	require.NoError(t, err)
	assert.False(t, granted, "second grant must not fire on a non-zero balance")

	granted, err = repos.User.GrantIfZero(ctx, "rich", 1000)
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, repos.User.Create(ctx, &model.User{ID: "zero2"}))
	n, err := repos.User.InitializeZeroBalances(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNodeRepository_ListActiveOrderingAndLiveness(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	now := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		seen := now
		require.NoError(t, repos.Node.Create(ctx, &model.Node{
			ID:         id,
			Status:     constants.NodeStatusOnline,
			LastSeenAt: &seen,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
		}))
	}
	repos.Node.(*NodeRepository).SetLastSeen("mid", now.Add(-40*time.Second))

	active, err := repos.Node.ListActive(ctx, now.Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "old", active[0].ID)
	assert.Equal(t, "new", active[1].ID)

	all, err := repos.Node.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID, "List is newest first")
}

func TestNodeRepository_HeartbeatAndReward(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	require.NoError(t, repos.Node.Create(ctx, &model.Node{ID: "n1", Status: constants.NodeStatusOffline}))

	at := time.Now()
	node, err := repos.Node.UpdateHeartbeat(ctx, "n1", map[string]interface{}{"cpu": 0.5}, at)
	require.NoError(t, err)
	assert.Equal(t, constants.NodeStatusOnline, node.Status)
	assert.Equal(t, 0.5, node.Metrics["cpu"])
	assert.True(t, node.LastSeenAt.Equal(at))

	_, err = repos.Node.UpdateHeartbeat(ctx, "unknown", nil, at)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repos.Node.CreditReward(ctx, "n1", 80))
	node, err = repos.Node.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), node.TokenBalance)
	assert.Equal(t, int64(80), node.TotalEarned)
}

func TestJobRepository_UpdateStatusIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	require.NoError(t, repos.Job.Create(ctx, &model.Job{ID: "j1", Status: constants.JobStatusPending, SubmitterID: "u1"}))

	started := time.Now()
	require.NoError(t, repos.Job.UpdateStatus(ctx, "j1", constants.JobStatusPending, constants.JobStatusRunning,
		model.JobUpdate{Progress: model.IntPtr(0), StartedAt: &started}))

	err := repos.Job.UpdateStatus(ctx, "j1", constants.JobStatusPending, constants.JobStatusRunning, model.JobUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	err = repos.Job.UpdateStatus(ctx, "nope", constants.JobStatusPending, constants.JobStatusRunning, model.JobUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	job, err := repos.Job.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)
}

func TestJobRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	base := time.Now().Add(-time.Hour)
	node := "n1"

	require.NoError(t, repos.Job.Create(ctx, &model.Job{ID: "a", SubmitterID: "u1", Status: constants.JobStatusPending, TokenStake: 10, CreatedAt: base}))
	require.NoError(t, repos.Job.Create(ctx, &model.Job{ID: "b", SubmitterID: "u2", Status: constants.JobStatusCompleted, TokenStake: 20, AssignedNodeID: &node, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repos.Job.Create(ctx, &model.Job{ID: "c", SubmitterID: "u1", Status: constants.JobStatusPending, TokenStake: 30, AssignedNodeID: &node, CreatedAt: time.Now()}))

	jobs, err := repos.Job.ListBySubmitter(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)

	pending, err := repos.Job.ListByStatus(ctx, constants.JobStatusPending, time.Now().Add(-30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	count, err := repos.Job.CountByStatus(ctx, constants.JobStatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	byNode, err := repos.Job.CountByNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byNode["n1"])

	sum, err := repos.Job.SumStake(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), sum)
}

func TestLedgerRepository_AppendRejectsForks(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	genesis := &model.LedgerBlock{ID: "b0", Height: 0, Hash: "h0"}
	require.NoError(t, repos.Ledger.Append(ctx, genesis))

	prev := "h0"
	require.NoError(t, repos.Ledger.Append(ctx, &model.LedgerBlock{ID: "b1", Height: 1, PrevHash: &prev, Hash: "h1"}))

	// Built on the same head as b1.
	err := repos.Ledger.Append(ctx, &model.LedgerBlock{ID: "fork", Height: 1, PrevHash: &prev, Hash: "hx"})
	assert.ErrorIs(t, err, model.ErrLedgerWriteConflict)

	wrong := "zzz"
	err = repos.Ledger.Append(ctx, &model.LedgerBlock{ID: "bad", Height: 2, PrevHash: &wrong, Hash: "h2"})
	assert.ErrorIs(t, err, model.ErrLedgerWriteConflict)

	head, err := repos.Ledger.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", head.ID)

	recent, err := repos.Ledger.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b1", recent[0].ID)

	from, err := repos.Ledger.ListFrom(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "b0", from[0].ID)

	empty, err := repos.Ledger.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestContributionRepository_ListByJobInCreationOrder(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	base := time.Now()

	for i, id := range []string{"c1", "other", "c2", "c3"} {
		jobID := "job-1"
		if id == "other" {
			jobID = "job-2"
		}
		require.NoError(t, repos.Contribution.Create(ctx, &model.Contribution{
			ID: id, NodeID: "n1", JobID: jobID, TokensEarned: 80, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := repos.Contribution.ListByJob(ctx, "job-1")
	require.NoError(t, err)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)

	none, err := repos.Contribution.ListByJob(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestJobRepository_CompletedIsTerminal(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	require.NoError(t, repos.Job.Create(ctx, &model.Job{ID: "j", SubmitterID: "u", Status: constants.JobStatusRunning}))

	require.NoError(t, repos.Job.UpdateStatus(ctx, "j", constants.JobStatusRunning, constants.JobStatusCompleted, model.JobUpdate{}))
	err := repos.Job.UpdateStatus(ctx, "j", constants.JobStatusCompleted, constants.JobStatusFailed, model.JobUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}
