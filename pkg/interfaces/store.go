package interfaces

import (
	"context"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
)

// UserRepository holds submitter accounts. Debit and Credit are each atomic
// with respect to any other balance mutation of the same user.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// Get returns nil, nil when the user does not exist.
	Get(ctx context.Context, userID string) (*model.User, error)
	// Debit subtracts amount only if balance >= amount (check and act are one step).
	// Returns ErrInsufficientBalance or ErrNotFound.
	Debit(ctx context.Context, userID string, amount int64) error
	Credit(ctx context.Context, userID string, amount int64) error
	// GrantIfZero sets balance to grant only when it is exactly zero.
	GrantIfZero(ctx context.Context, userID string, grant int64) (bool, error)
	// InitializeZeroBalances grants every zero-balance user and returns how many changed.
	InitializeZeroBalances(ctx context.Context, grant int64) (int64, error)
}

// NodeRepository holds registered compute nodes.
type NodeRepository interface {
	Create(ctx context.Context, node *model.Node) error
	// Get returns nil, nil when the node does not exist.
	Get(ctx context.Context, nodeID string) (*model.Node, error)
	// List returns all nodes, newest first.
	List(ctx context.Context) ([]*model.Node, error)
	// ListActive returns ONLINE nodes seen strictly after since, oldest first.
	ListActive(ctx context.Context, since time.Time) ([]*model.Node, error)
	// UpdateHeartbeat sets last seen, ONLINE and metrics. Returns ErrNotFound.
	UpdateHeartbeat(ctx context.Context, nodeID string, metrics map[string]interface{}, at time.Time) (*model.Node, error)
	// CreditReward adds amount to both token balance and total earned.
	CreditReward(ctx context.Context, nodeID string, amount int64) error
}

// JobRepository holds job records and guards their status transitions.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	// Get returns nil, nil when the job does not exist.
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// ListBySubmitter returns the submitter's jobs, newest first.
	ListBySubmitter(ctx context.Context, submitterID string) ([]*model.Job, error)
	// ListByStatus returns jobs in status created before the cutoff (zero = no cutoff),
	// oldest first, at most limit (0 = unlimited).
	ListByStatus(ctx context.Context, status constants.JobStatus, createdBefore time.Time, limit int) ([]*model.Job, error)
	// UpdateStatus is a compare-and-swap on status. Returns ErrInvalidTransition
	// when the job is missing or not in from.
	UpdateStatus(ctx context.Context, jobID string, from, to constants.JobStatus, update model.JobUpdate) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	CountByStatus(ctx context.Context, status constants.JobStatus) (int64, error)
	// CountByNode returns how many jobs were assigned to each node.
	CountByNode(ctx context.Context) (map[string]int64, error)
	SumStake(ctx context.Context) (int64, error)
}

// ContributionRepository holds immutable reward records.
type ContributionRepository interface {
	Create(ctx context.Context, c *model.Contribution) error
	ListByJob(ctx context.Context, jobID string) ([]*model.Contribution, error)
}

// LedgerRepository is the append-only block store.
type LedgerRepository interface {
	// Head returns the highest block, nil when the chain is empty.
	Head(ctx context.Context) (*model.LedgerBlock, error)
	// Append inserts block. A block whose height is already taken, or whose
	// prevHash does not match the stored head, yields ErrLedgerWriteConflict.
	Append(ctx context.Context, block *model.LedgerBlock) error
	// Get returns nil, nil when the block does not exist.
	Get(ctx context.Context, blockID string) (*model.LedgerBlock, error)
	// ListRecent returns the limit most recent blocks, newest first.
	ListRecent(ctx context.Context, limit int) ([]*model.LedgerBlock, error)
	// ListFrom returns blocks with height >= from in ascending order, at most limit.
	ListFrom(ctx context.Context, from int64, limit int) ([]*model.LedgerBlock, error)
}

// Repositories aggregates the record sets of one store backend.
type Repositories struct {
	User         UserRepository
	Node         NodeRepository
	Job          JobRepository
	Contribution ContributionRepository
	Ledger       LedgerRepository

	// Close releases backend resources, may be nil.
	Close func() error
}

// NodePresenceCache mirrors recent heartbeats into a shared cache so every
// replica can list live nodes without a store round-trip.
type NodePresenceCache interface {
	Save(ctx context.Context, node *model.Node) error
	GetAll(ctx context.Context) ([]*model.Node, error)
}
