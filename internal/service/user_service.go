package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"
	"modelmine/pkg/metrics"

	"github.com/google/uuid"
)

// UserService User account service
type UserService struct {
	users          interfaces.UserRepository
	bootstrapGrant int64
}

// NewUserService creates a new user service
func NewUserService(users interfaces.UserRepository, bootstrapGrant int64) *UserService {
	return &UserService{users: users, bootstrapGrant: bootstrapGrant}
}

// Create provisions a user account
func (s *UserService) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	if req.TokenBalance < 0 {
		return nil, model.Validationf("tokenBalance must not be negative")
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	user := &model.User{
		ID:           id,
		Email:        req.Email,
		Name:         req.Name,
		TokenBalance: req.TokenBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "user created, user_id: %s, balance: %d", user.ID, user.TokenBalance)
	return user, nil
}

// Get returns a user or ErrNotFound
func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, model.NotFoundf("user %s", userID)
	}
	return user, nil
}

// InitializeBalances grants the bootstrap amount to every zero-balance user
func (s *UserService) InitializeBalances(ctx context.Context) (int64, error) {
	if s.bootstrapGrant <= 0 {
		return 0, nil
	}
	n, err := s.users.InitializeZeroBalances(ctx, s.bootstrapGrant)
	if err != nil {
		return 0, err
	}
	metrics.TokensMovedTotal.WithLabelValues(metrics.TokensGranted).Add(float64(n * s.bootstrapGrant))
	logger.InfoCtx(ctx, "initialized %d zero balances with %d tokens", n, s.bootstrapGrant)
	return n, nil
}
