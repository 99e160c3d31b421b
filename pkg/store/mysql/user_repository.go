package mysql

import (
	"context"
	"fmt"
	"time"

	"modelmine/internal/model"

	"gorm.io/gorm"
)

// UserRepository handles user accounts in MySQL
type UserRepository struct {
	ds *Datastore
}

// NewUserRepository creates a new user repository
func NewUserRepository(ds *Datastore) *UserRepository {
	return &UserRepository{ds: ds}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	row := FromUserDomain(user)
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		if isDuplicateKey(err) {
			return model.Validationf("user %s already exists", user.ID)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, userID string) (*model.User, error) {
	var user User
	err := r.ds.DB(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return ToUserDomain(&user), nil
}

// Debit subtracts amount in a single conditional UPDATE so two concurrent
// debits can never both pass the balance check
func (r *UserRepository) Debit(ctx context.Context, userID string, amount int64) error {
	result := r.ds.DB(ctx).Model(&User{}).
		Where("user_id = ? AND token_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"token_balance": gorm.Expr("token_balance - ?", amount),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to debit user: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	user, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return model.NotFoundf("user %s", userID)
	}
	return fmt.Errorf("%w: user %s has %d, needs %d", model.ErrInsufficientBalance, userID, user.TokenBalance, amount)
}

// Credit adds amount to the user's balance
func (r *UserRepository) Credit(ctx context.Context, userID string, amount int64) error {
	result := r.ds.DB(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"token_balance": gorm.Expr("token_balance + ?", amount),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.NotFoundf("user %s", userID)
	}
	return nil
}

// GrantIfZero sets the balance to grant only while it is exactly zero
func (r *UserRepository) GrantIfZero(ctx context.Context, userID string, grant int64) (bool, error) {
	result := r.ds.DB(ctx).Model(&User{}).
		Where("user_id = ? AND token_balance = 0", userID).
		Updates(map[string]interface{}{
			"token_balance": grant,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to grant user balance: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	user, err := r.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, model.NotFoundf("user %s", userID)
	}
	return false, nil
}

// InitializeZeroBalances grants every zero-balance user
func (r *UserRepository) InitializeZeroBalances(ctx context.Context, grant int64) (int64, error) {
	result := r.ds.DB(ctx).Model(&User{}).
		Where("token_balance = 0").
		Updates(map[string]interface{}{
			"token_balance": grant,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to initialize balances: %w", result.Error)
	}
	return result.RowsAffected, nil
}
