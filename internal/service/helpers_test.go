package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/config"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/store/memory"

	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

func (q *recordingQueue) Start(interfaces.JobHandler) error { return nil }
func (q *recordingQueue) Stop()                             {}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type fixture struct {
	repos  interfaces.Repositories
	tokens *TokenLedger
	nodes  *NodeService
	ledger *AuditLedger
	jobs   *JobService
	users  *UserService
	stats  *StatisticsService
	queue  *recordingQueue
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	repos := memory.NewRepositories()

	f := &fixture{
		repos: repos,
		queue: &recordingQueue{},
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.tokens = NewTokenLedger(repos.User, repos.Node)
	f.nodes = NewNodeService(repos.Node, nil, cfg.Node.Window())
	f.nodes.SetClock(func() time.Time { return f.now })
	f.ledger = NewAuditLedger(repos.Ledger, nil)
	f.jobs = NewJobService(repos.Job, repos.Contribution, f.tokens, f.nodes, f.queue, cfg.Token)
	f.users = NewUserService(repos.User, cfg.Token.BootstrapGrant)
	f.stats = NewStatisticsService(repos.Job, f.nodes, f.ledger)
	return f
}

func (f *fixture) addUser(t *testing.T, id string, balance int64) {
	t.Helper()
	_, err := f.users.Create(context.Background(), &model.CreateUserRequest{ID: id, TokenBalance: balance})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := f.tokens.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) ageNode(id string, age time.Duration) {
	f.repos.Node.(*memory.NodeRepository).SetLastSeen(id, f.now.Add(-age))
}

func stakeOf(v int64) *int64 { return &v }

func submitReq(user string, stake int64) *model.SubmitRequest {
	return &model.SubmitRequest{
		Title:       "train resnet",
		Config:      map[string]interface{}{"epochs": 10},
		SubmitterID: user,
		TokenStake:  stakeOf(stake),
	}
}
