package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/ledger"
	"modelmine/pkg/lock"
	"modelmine/pkg/logger"
	"modelmine/pkg/metrics"

	"github.com/google/uuid"
)

const (
	DefaultRecentBlocks = 100
	MaxRecentBlocks     = 1000
	verifyPageSize      = 500
)

// AuditLedger appends completed jobs to the hash chain. Appends are totally
// ordered: a process mutex orders local writers and the optional distributed
// lock orders replicas.
type AuditLedger struct {
	repo  interfaces.LedgerRepository
	lock  interfaces.DistributedLock
	mu    sync.Mutex
	nonce *ledger.NonceClock
	now   func() time.Time
}

// NewAuditLedger creates the ledger service. lock may be nil for a single replica.
func NewAuditLedger(repo interfaces.LedgerRepository, lock interfaces.DistributedLock) *AuditLedger {
	return &AuditLedger{
		repo:  repo,
		lock:  lock,
		nonce: ledger.NewNonceClock(nil),
		now:   time.Now,
	}
}

// Append links a block for jobID onto the current head
func (a *AuditLedger) Append(ctx context.Context, jobID string, result map[string]interface{}, completedAt time.Time) (*model.LedgerBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lock != nil {
		if err := lock.Acquire(ctx, a.lock, 0); err != nil {
			return nil, fmt.Errorf("failed to acquire ledger lock: %w", err)
		}
		defer func() {
			if err := a.lock.Unlock(context.Background()); err != nil {
				logger.WarnCtx(ctx, "failed to release ledger lock: %v", err)
			}
		}()
	}

	head, err := a.repo.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger head: %w", err)
	}

	block := &model.LedgerBlock{
		ID: uuid.New().String(),
		Data: model.LedgerEntry{
			JobID:     jobID,
			Result:    result,
			Timestamp: completedAt.UTC().Format(time.RFC3339Nano),
		},
		Timestamp: a.now(),
	}
	if head != nil {
		a.nonce.Observe(head.Nonce)
		prev := head.Hash
		block.Height = head.Height + 1
		block.PrevHash = &prev
	}
	block.Nonce = a.nonce.Next()

	if block.Hash, err = ledger.ComputeHash(block.PrevHash, block.Data, block.Nonce); err != nil {
		return nil, err
	}

	if err := a.repo.Append(ctx, block); err != nil {
		if errors.Is(err, model.ErrLedgerWriteConflict) {
			metrics.LedgerConflictsTotal.Inc()
			logger.ErrorCtx(ctx, "ledger write conflict, job_id: %s, height: %d, error: %v", jobID, block.Height, err)
		}
		return nil, err
	}

	metrics.LedgerHeight.Set(float64(block.Height + 1))
	logger.InfoCtx(ctx, "ledger block appended, job_id: %s, height: %d, hash: %s", jobID, block.Height, block.Hash)
	return block, nil
}

// GetRecent returns the most recent blocks, newest first
func (a *AuditLedger) GetRecent(ctx context.Context, limit int) ([]*model.LedgerBlock, error) {
	if limit <= 0 {
		limit = DefaultRecentBlocks
	}
	if limit > MaxRecentBlocks {
		limit = MaxRecentBlocks
	}
	return a.repo.ListRecent(ctx, limit)
}

// Get returns a block or ErrNotFound
func (a *AuditLedger) Get(ctx context.Context, blockID string) (*model.LedgerBlock, error) {
	block, err := a.repo.Get(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, model.NotFoundf("block %s", blockID)
	}
	return block, nil
}

// Height returns the number of blocks
func (a *AuditLedger) Height(ctx context.Context) (int64, error) {
	head, err := a.repo.Head(ctx)
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, nil
	}
	return head.Height + 1, nil
}

// Verify recomputes every hash and link from genesis
func (a *AuditLedger) Verify(ctx context.Context) (model.ChainReport, error) {
	v := ledger.NewVerifier()
	var from int64
	for {
		page, err := a.repo.ListFrom(ctx, from, verifyPageSize)
		if err != nil {
			return model.ChainReport{}, fmt.Errorf("failed to read ledger: %w", err)
		}
		for _, block := range page {
			if !v.Add(block) {
				return v.Report(), nil
			}
		}
		if len(page) < verifyPageSize {
			return v.Report(), nil
		}
		from = page[len(page)-1].Height + 1
	}
}
