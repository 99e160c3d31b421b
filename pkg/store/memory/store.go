// Package memory is an in-process store backend. Every record set is guarded
// by one mutex, so balance check-then-debit and ledger head-then-append are
// single critical sections.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
	"modelmine/pkg/interfaces"
)

// Store is the shared state behind the memory repositories.
type Store struct {
	mu sync.RWMutex

	users         map[string]*model.User
	nodes         map[string]*model.Node
	nodeOrder     []string
	jobs          map[string]*model.Job
	jobOrder      []string
	contributions []*model.Contribution
	blocks        []*model.LedgerBlock
	blockByID     map[string]*model.LedgerBlock
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:     make(map[string]*model.User),
		nodes:     make(map[string]*model.Node),
		jobs:      make(map[string]*model.Job),
		blockByID: make(map[string]*model.LedgerBlock),
	}
}

// NewRepositories returns every repository backed by a fresh store.
func NewRepositories() interfaces.Repositories {
	s := NewStore()
	return interfaces.Repositories{
		User:         &UserRepository{s: s},
		Node:         &NodeRepository{s: s},
		Job:          &JobRepository{s: s},
		Contribution: &ContributionRepository{s: s},
		Ledger:       &LedgerRepository{s: s},
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ---- users ----

// UserRepository memory user repository
type UserRepository struct {
	s *Store
}

func cloneUser(u *model.User) *model.User {
	c := *u
	return &c
}

// Create creates a new user, rejecting a duplicate ID
func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return model.Validationf("user %s already exists", user.ID)
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

// Get retrieves a user by ID, nil when missing
func (r *UserRepository) Get(_ context.Context, userID string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

// Debit subtracts amount when the balance covers it
func (r *UserRepository) Debit(_ context.Context, userID string, amount int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return model.NotFoundf("user %s", userID)
	}
	if u.TokenBalance < amount {
		return fmt.Errorf("%w: have %d, need %d", model.ErrInsufficientBalance, u.TokenBalance, amount)
	}
	u.TokenBalance -= amount
	u.UpdatedAt = time.Now()
	return nil
}

// Credit adds amount to the user's balance
func (r *UserRepository) Credit(_ context.Context, userID string, amount int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return model.NotFoundf("user %s", userID)
	}
	u.TokenBalance += amount
	u.UpdatedAt = time.Now()
	return nil
}

// GrantIfZero sets the balance to grant only while it is exactly zero
func (r *UserRepository) GrantIfZero(_ context.Context, userID string, grant int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return false, model.NotFoundf("user %s", userID)
	}
	if u.TokenBalance != 0 {
		return false, nil
	}
	u.TokenBalance = grant
	u.UpdatedAt = time.Now()
	return true, nil
}

// InitializeZeroBalances grants every zero-balance user
func (r *UserRepository) InitializeZeroBalances(_ context.Context, grant int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, u := range r.s.users {
		if u.TokenBalance == 0 {
			u.TokenBalance = grant
			u.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// ---- nodes ----

// NodeRepository memory node repository
type NodeRepository struct {
	s *Store
}

func cloneNode(n *model.Node) *model.Node {
	c := *n
	c.Metrics = copyMap(n.Metrics)
	if n.LastSeenAt != nil {
		t := *n.LastSeenAt
		c.LastSeenAt = &t
	}
	return &c
}

// Create creates a new node
func (r *NodeRepository) Create(_ context.Context, node *model.Node) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.nodes[node.ID]; ok {
		return fmt.Errorf("node already exists: %s", node.ID)
	}
	r.s.nodes[node.ID] = cloneNode(node)
	r.s.nodeOrder = append(r.s.nodeOrder, node.ID)
	return nil
}

// Get retrieves a node by ID, nil when missing
func (r *NodeRepository) Get(_ context.Context, nodeID string) (*model.Node, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.nodes[nodeID]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

// sortedNodes returns nodes by creation time ascending, insertion order breaking ties.
func (r *NodeRepository) sortedNodes() []*model.Node {
	out := make([]*model.Node, 0, len(r.s.nodeOrder))
	for _, id := range r.s.nodeOrder {
		out = append(out, r.s.nodes[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// List retrieves all nodes, newest first
func (r *NodeRepository) List(_ context.Context) ([]*model.Node, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sorted := r.sortedNodes()
	out := make([]*model.Node, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		out = append(out, cloneNode(sorted[i]))
	}
	return out, nil
}

// ListActive retrieves ONLINE nodes seen after since, oldest registration first
func (r *NodeRepository) ListActive(_ context.Context, since time.Time) ([]*model.Node, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Node, 0)
	for _, n := range r.sortedNodes() {
		if n.Status == constants.NodeStatusOnline && n.LastSeenAt != nil && n.LastSeenAt.After(since) {
			out = append(out, cloneNode(n))
		}
	}
	return out, nil
}

// UpdateHeartbeat records a heartbeat and returns the updated node
func (r *NodeRepository) UpdateHeartbeat(_ context.Context, nodeID string, metrics map[string]interface{}, at time.Time) (*model.Node, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.nodes[nodeID]
	if !ok {
		return nil, model.NotFoundf("node %s", nodeID)
	}
	seen := at
	n.LastSeenAt = &seen
	n.Status = constants.NodeStatusOnline
	n.Metrics = copyMap(metrics)
	n.UpdatedAt = at
	return cloneNode(n), nil
}

// CreditReward adds amount to the node's balance and lifetime earnings
func (r *NodeRepository) CreditReward(_ context.Context, nodeID string, amount int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.nodes[nodeID]
	if !ok {
		return model.NotFoundf("node %s", nodeID)
	}
	n.TokenBalance += amount
	n.TotalEarned += amount
	n.UpdatedAt = time.Now()
	return nil
}

// SetLastSeen overwrites a node's last heartbeat time. Used to age nodes in tests.
func (r *NodeRepository) SetLastSeen(nodeID string, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n, ok := r.s.nodes[nodeID]; ok {
		seen := at
		n.LastSeenAt = &seen
	}
}

// ---- jobs ----

// JobRepository memory job repository
type JobRepository struct {
	s *Store
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	c.Config = copyMap(j.Config)
	c.Result = copyMap(j.Result)
	if j.AssignedNodeID != nil {
		id := *j.AssignedNodeID
		c.AssignedNodeID = &id
	}
	return &c
}

// Create creates a new job
func (r *JobRepository) Create(_ context.Context, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	r.s.jobs[job.ID] = cloneJob(job)
	r.s.jobOrder = append(r.s.jobOrder, job.ID)
	return nil
}

// Get retrieves a job by ID, nil when missing
func (r *JobRepository) Get(_ context.Context, jobID string) (*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

// ListBySubmitter retrieves a submitter's jobs, newest first
func (r *JobRepository) ListBySubmitter(_ context.Context, submitterID string) ([]*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Job, 0)
	for i := len(r.s.jobOrder) - 1; i >= 0; i-- {
		j := r.s.jobs[r.s.jobOrder[i]]
		if j.SubmitterID == submitterID {
			out = append(out, cloneJob(j))
		}
	}
	return out, nil
}

// ListByStatus retrieves jobs in status created before createdBefore, oldest first
func (r *JobRepository) ListByStatus(_ context.Context, status constants.JobStatus, createdBefore time.Time, limit int) ([]*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Job, 0)
	for _, id := range r.s.jobOrder {
		j := r.s.jobs[id]
		if j.Status != status {
			continue
		}
		if !createdBefore.IsZero() && !j.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, cloneJob(j))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateStatus moves a job from one status to another.
// Returns ErrInvalidTransition if the job is missing or not in from
func (r *JobRepository) UpdateStatus(_ context.Context, jobID string, from, to constants.JobStatus, update model.JobUpdate) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok || j.Status != from {
		return fmt.Errorf("%w: job_id=%s, from=%s, to=%s", model.ErrInvalidTransition, jobID, from, to)
	}
	j.Status = to
	if update.Progress != nil {
		j.Progress = *update.Progress
	}
	if update.Result != nil {
		j.Result = copyMap(update.Result)
	}
	if update.Error != nil {
		j.Error = *update.Error
	}
	if update.StartedAt != nil {
		t := *update.StartedAt
		j.StartedAt = &t
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		j.CompletedAt = &t
	}
	j.UpdatedAt = time.Now()
	return nil
}

// UpdateProgress updates the progress of a running job
func (r *JobRepository) UpdateProgress(_ context.Context, jobID string, progress int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return model.NotFoundf("job %s", jobID)
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return nil
}

// CountByStatus counts jobs by status
func (r *JobRepository) CountByStatus(_ context.Context, status constants.JobStatus) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, j := range r.s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

// CountByNode counts assigned jobs per node
func (r *JobRepository) CountByNode(_ context.Context) (map[string]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]int64)
	for _, j := range r.s.jobs {
		if j.HasAssignedNode() {
			out[*j.AssignedNodeID]++
		}
	}
	return out, nil
}

// SumStake sums the stake of every job
func (r *JobRepository) SumStake(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sum int64
	for _, j := range r.s.jobs {
		sum += j.TokenStake
	}
	return sum, nil
}

// ---- contributions ----

// ContributionRepository memory contribution repository
type ContributionRepository struct {
	s *Store
}

// Create creates a new contribution
func (r *ContributionRepository) Create(_ context.Context, c *model.Contribution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	cp.Details = copyMap(c.Details)
	r.s.contributions = append(r.s.contributions, &cp)
	return nil
}

// ListByJob retrieves a job's contributions in creation order
func (r *ContributionRepository) ListByJob(_ context.Context, jobID string) ([]*model.Contribution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Contribution, 0)
	for _, c := range r.s.contributions {
		if c.JobID == jobID {
			cp := *c
			cp.Details = copyMap(c.Details)
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- ledger ----

// LedgerRepository memory ledger repository
type LedgerRepository struct {
	s *Store
}

func cloneBlock(b *model.LedgerBlock) *model.LedgerBlock {
	c := *b
	c.Data.Result = copyMap(b.Data.Result)
	if b.PrevHash != nil {
		h := *b.PrevHash
		c.PrevHash = &h
	}
	return &c
}

// Head retrieves the highest block, nil when the chain is empty
func (r *LedgerRepository) Head(_ context.Context) (*model.LedgerBlock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.blocks) == 0 {
		return nil, nil
	}
	return cloneBlock(r.s.blocks[len(r.s.blocks)-1]), nil
}

// Append stores block when it extends the current head, else ErrLedgerWriteConflict
func (r *LedgerRepository) Append(_ context.Context, block *model.LedgerBlock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	expectedHeight := int64(len(r.s.blocks))
	if block.Height != expectedHeight {
		return fmt.Errorf("%w: height %d, expected %d", model.ErrLedgerWriteConflict, block.Height, expectedHeight)
	}
	if expectedHeight == 0 {
		if block.PrevHash != nil {
			return fmt.Errorf("%w: genesis block must not link to a predecessor", model.ErrLedgerWriteConflict)
		}
	} else {
		head := r.s.blocks[expectedHeight-1]
		if block.PrevHash == nil || *block.PrevHash != head.Hash {
			return fmt.Errorf("%w: prevHash does not match head %s", model.ErrLedgerWriteConflict, head.Hash)
		}
	}

	stored := cloneBlock(block)
	r.s.blocks = append(r.s.blocks, stored)
	r.s.blockByID[stored.ID] = stored
	return nil
}

// Get retrieves a block by ID, nil when missing
func (r *LedgerRepository) Get(_ context.Context, blockID string) (*model.LedgerBlock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.blockByID[blockID]
	if !ok {
		return nil, nil
	}
	return cloneBlock(b), nil
}

// ListRecent retrieves the most recent blocks, newest first
func (r *LedgerRepository) ListRecent(_ context.Context, limit int) ([]*model.LedgerBlock, error) {
	if limit <= 0 {
		return []*model.LedgerBlock{}, nil
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.LedgerBlock, 0, limit)
	for i := len(r.s.blocks) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneBlock(r.s.blocks[i]))
	}
	return out, nil
}

// ListFrom retrieves blocks from height upward
func (r *LedgerRepository) ListFrom(_ context.Context, from int64, limit int) ([]*model.LedgerBlock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.LedgerBlock, 0)
	if from < 0 {
		from = 0
	}
	for i := from; i < int64(len(r.s.blocks)) && (limit <= 0 || len(out) < limit); i++ {
		out = append(out, cloneBlock(r.s.blocks[i]))
	}
	return out, nil
}

// Tamper overwrites the stored hash of the block at height. Used by auditor tests.
func (r *LedgerRepository) Tamper(height int64, hash string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if height >= 0 && height < int64(len(r.s.blocks)) {
		r.s.blocks[height].Hash = hash
	}
}
