package mysql

import (
	"context"

	"modelmine/pkg/interfaces"
)

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	User         *UserRepository
	Node         *NodeRepository
	Job          *JobRepository
	Contribution *ContributionRepository
	Ledger       *LedgerRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories and migrates the schema
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}
	if err := ds.Migrate(ctx); err != nil {
		ds.Close()
		return nil, err
	}

	return &Repository{
		ds:           ds,
		User:         NewUserRepository(ds),
		Node:         NewNodeRepository(ds),
		Job:          NewJobRepository(ds),
		Contribution: NewContributionRepository(ds),
		Ledger:       NewLedgerRepository(ds),
	}, nil
}

// Repositories exposes the repository set through the backend-neutral interfaces.
func (r *Repository) Repositories() interfaces.Repositories {
	return interfaces.Repositories{
		User:         r.User,
		Node:         r.Node,
		Job:          r.Job,
		Contribution: r.Contribution,
		Ledger:       r.Ledger,
		Close:        r.Close,
	}
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
