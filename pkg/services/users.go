package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
)

// UpdateUserInput carries optional profile changes; nil fields are left
// unchanged. Role changes are restricted to administrators.
type UpdateUserInput struct {
	Name    *string
	Avatar  *string
	Profile *string
	Role    *string
}

// UserService manages accounts and credential checks. Token issuance lives
// in pkg/auth; this service only deals with users and password hashes.
type UserService interface {
	Register(ctx context.Context, account, password, name string) (*models.User, error)
	Authenticate(ctx context.Context, account, password string) (*models.User, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context, actor *models.User, filter repositories.UserFilter) ([]*models.User, int, error)
	Update(ctx context.Context, actor *models.User, id int64, in UpdateUserInput) (*models.User, error)
	Delete(ctx context.Context, actor *models.User, id int64) error
}

type userService struct {
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewUserService creates a user service.
func NewUserService(users repositories.UserRepository, logger *zap.Logger) UserService {
	return &userService{users: users, logger: logger.Named("users")}
}

const minPasswordLength = 8

func (s *userService) Register(ctx context.Context, account, password, name string) (*models.User, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required: %w", apperrors.ErrInvalidIdentifier)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, apperrors.ErrInvalidIdentifier)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Account:      account,
		PasswordHash: string(hash),
		Name:         name,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, account, password string) (*models.User, error) {
	user, err := s.users.GetByAccount(ctx, account)
	if err != nil {
		// Do not reveal whether the account exists.
		return nil, apperrors.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// requireSelfOrAdmin mirrors the access rule for account changes: a user may
// touch their own record, and so may an administrator.
func requireSelfOrAdmin(actor *models.User, id int64) error {
	if actor.ID == id || actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("user %d may not modify user %d: %w", actor.ID, id, apperrors.ErrForbidden)
}

func (s *userService) List(ctx context.Context, actor *models.User, filter repositories.UserFilter) ([]*models.User, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, fmt.Errorf("user %d may not list users: %w", actor.ID, apperrors.ErrForbidden)
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *userService) Update(ctx context.Context, actor *models.User, id int64, in UpdateUserInput) (*models.User, error) {
	if err := requireSelfOrAdmin(actor, id); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Avatar != nil {
		user.Avatar = in.Avatar
	}
	if in.Profile != nil {
		user.Profile = in.Profile
	}
	if in.Role != nil {
		if !actor.IsAdmin() {
			return nil, fmt.Errorf("user %d may not change roles: %w", actor.ID, apperrors.ErrForbidden)
		}
		if !models.IsValidRole(*in.Role) {
			return nil, fmt.Errorf("unknown role %q: %w", *in.Role, apperrors.ErrInvalidIdentifier)
		}
		user.Role = *in.Role
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User updated", zap.Int64("user_id", user.ID), zap.Int64("actor_id", actor.ID))
	return user, nil
}

func (s *userService) Delete(ctx context.Context, actor *models.User, id int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("user %d may not delete users: %w", actor.ID, apperrors.ErrForbidden)
	}
	if err := s.users.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.Int64("user_id", id), zap.Int64("actor_id", actor.ID))
	return nil
}

// Ensure userService implements UserService at compile time.
var _ UserService = (*userService)(nil)
