package mysql

import (
	"context"
	"fmt"

	"modelmine/internal/model"

	"gorm.io/gorm/clause"
)

// LedgerRepository handles the append-only block table in MySQL
type LedgerRepository struct {
	ds *Datastore
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(ds *Datastore) *LedgerRepository {
	return &LedgerRepository{ds: ds}
}

// Head retrieves the highest block, nil when the chain is empty
func (r *LedgerRepository) Head(ctx context.Context) (*model.LedgerBlock, error) {
	var block LedgerBlock
	err := r.ds.DB(ctx).Order("height DESC").First(&block).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger head: %w", err)
	}
	return ToLedgerBlockDomain(&block), nil
}

// Append inserts a block after checking it extends the current head.
// The head row is locked for the duration of the transaction and the
// unique height index catches anything that slips past the check.
func (r *LedgerRepository) Append(ctx context.Context, block *model.LedgerBlock) error {
	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		var head LedgerBlock
		err := r.ds.DB(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Order("height DESC").
			First(&head).Error

		switch {
		case isNotFound(err):
			if block.Height != 0 || block.PrevHash != nil {
				return fmt.Errorf("%w: genesis expected, got height %d", model.ErrLedgerWriteConflict, block.Height)
			}
		case err != nil:
			return fmt.Errorf("failed to lock ledger head: %w", err)
		default:
			if block.Height != head.Height+1 || block.PrevHash == nil || *block.PrevHash != head.Hash {
				return fmt.Errorf("%w: block %d does not extend head %d", model.ErrLedgerWriteConflict, block.Height, head.Height)
			}
		}

		if err := r.ds.DB(ctx).Create(FromLedgerBlockDomain(block)).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: height %d already taken", model.ErrLedgerWriteConflict, block.Height)
			}
			return fmt.Errorf("failed to append block: %w", err)
		}
		return nil
	})
}

// Get retrieves a block by ID
func (r *LedgerRepository) Get(ctx context.Context, blockID string) (*model.LedgerBlock, error) {
	var block LedgerBlock
	err := r.ds.DB(ctx).Where("block_id = ?", blockID).First(&block).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return ToLedgerBlockDomain(&block), nil
}

// ListRecent retrieves the most recent blocks, newest first
func (r *LedgerRepository) ListRecent(ctx context.Context, limit int) ([]*model.LedgerBlock, error) {
	if limit <= 0 {
		return []*model.LedgerBlock{}, nil
	}
	var rows []*LedgerBlock
	if err := r.ds.DB(ctx).Order("height DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return toBlocks(rows), nil
}

// ListFrom retrieves blocks from height upward
func (r *LedgerRepository) ListFrom(ctx context.Context, from int64, limit int) ([]*model.LedgerBlock, error) {
	query := r.ds.DB(ctx).Where("height >= ?", from).Order("height ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*LedgerBlock
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return toBlocks(rows), nil
}

func toBlocks(rows []*LedgerBlock) []*model.LedgerBlock {
	blocks := make([]*model.LedgerBlock, 0, len(rows))
	for _, row := range rows {
		blocks = append(blocks, ToLedgerBlockDomain(row))
	}
	return blocks
}
