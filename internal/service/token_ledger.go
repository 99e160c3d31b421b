package service

import (
	"context"
	"fmt"

	"modelmine/internal/model"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/metrics"
)

// TokenLedger moves tokens between the escrow and user or node accounts.
// Every call is one atomic store operation on one account.
type TokenLedger struct {
	users interfaces.UserRepository
	nodes interfaces.NodeRepository
}

// NewTokenLedger creates a new token ledger
func NewTokenLedger(users interfaces.UserRepository, nodes interfaces.NodeRepository) *TokenLedger {
	return &TokenLedger{users: users, nodes: nodes}
}

// Debit takes amount from the user, failing with ErrInsufficientBalance
func (l *TokenLedger) Debit(ctx context.Context, userID string, amount int64) error {
	if amount < 0 {
		return model.Validationf("negative debit %d", amount)
	}
	if amount == 0 {
		return l.requireUser(ctx, userID)
	}
	if err := l.users.Debit(ctx, userID, amount); err != nil {
		return err
	}
	metrics.TokensMovedTotal.WithLabelValues(metrics.TokensEscrowed).Add(float64(amount))
	return nil
}

// Credit returns amount to the user
func (l *TokenLedger) Credit(ctx context.Context, userID string, amount int64) error {
	if amount < 0 {
		return model.Validationf("negative credit %d", amount)
	}
	if amount == 0 {
		return nil
	}
	if err := l.users.Credit(ctx, userID, amount); err != nil {
		return err
	}
	metrics.TokensMovedTotal.WithLabelValues(metrics.TokensRefunded).Add(float64(amount))
	return nil
}

// CreditNode pays a reward, raising both balance and lifetime earnings
func (l *TokenLedger) CreditNode(ctx context.Context, nodeID string, amount int64) error {
	if amount < 0 {
		return model.Validationf("negative reward %d", amount)
	}
	if amount == 0 {
		return nil
	}
	if err := l.nodes.CreditReward(ctx, nodeID, amount); err != nil {
		return err
	}
	metrics.TokensMovedTotal.WithLabelValues(metrics.TokensRewarded).Add(float64(amount))
	return nil
}

// GrantIfZero credits the bootstrap grant when the balance is exactly zero
func (l *TokenLedger) GrantIfZero(ctx context.Context, userID string, grant int64) (bool, error) {
	if grant <= 0 {
		return false, nil
	}
	granted, err := l.users.GrantIfZero(ctx, userID, grant)
	if err != nil {
		return false, err
	}
	if granted {
		metrics.TokensMovedTotal.WithLabelValues(metrics.TokensGranted).Add(float64(grant))
	}
	return granted, nil
}

// Balance returns the user's balance
func (l *TokenLedger) Balance(ctx context.Context, userID string) (int64, error) {
	user, err := l.users.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return 0, model.NotFoundf("user %s", userID)
	}
	return user.TokenBalance, nil
}

func (l *TokenLedger) requireUser(ctx context.Context, userID string) error {
	_, err := l.Balance(ctx, userID)
	return err
}
