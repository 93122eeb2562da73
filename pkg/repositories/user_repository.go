package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/database"
	"github.com/forgelab-io/forge-engine/pkg/models"
)

// UserFilter narrows List and Count results.
type UserFilter struct {
	Account string // substring match
	Name    string // substring match
	Offset  int
	Limit   int
}

func (f UserFilter) where() (string, []any) {
	clause := "is_delete = FALSE"
	args := []any{}
	n := 1
	if f.Account != "" {
		clause += fmt.Sprintf(" AND account ILIKE $%d", n)
		args = append(args, "%"+f.Account+"%")
		n++
	}
	if f.Name != "" {
		clause += fmt.Sprintf(" AND name ILIKE $%d", n)
		args = append(args, "%"+f.Name+"%")
		n++
	}
	return clause, args
}

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByAccount(ctx context.Context, account string) (*models.User, error)
	List(ctx context.Context, filter UserFilter) ([]*models.User, error)
	Count(ctx context.Context, filter UserFilter) (int, error)
	Update(ctx context.Context, user *models.User) error
	SoftDelete(ctx context.Context, id int64) error
}

// userRepository implements UserRepository using PostgreSQL.
type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, account, password_hash, name, avatar, profile, role, created_at, updated_at, is_delete`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Account,
		&user.PasswordHash,
		&user.Name,
		&user.Avatar,
		&user.Profile,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.IsDelete,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user. A duplicate account surfaces as ErrConflict via
// the unique index rather than a pre-check.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (account, password_hash, name, avatar, profile, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		user.Account,
		user.PasswordHash,
		user.Name,
		user.Avatar,
		user.Profile,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a live user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_delete = FALSE`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByAccount retrieves a live user by account name.
func (r *userRepository) GetByAccount(ctx context.Context, account string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE account = $1 AND is_delete = FALSE`

	user, err := scanUser(r.db.QueryRow(ctx, query, account))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by account: %w", err)
	}
	return user, nil
}

// List returns users matching the filter ordered by recency.
func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	clause, args := filter.where()
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s
		ORDER BY created_at DESC
		OFFSET %d LIMIT %d`, userColumns, clause, filter.Offset, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user rows: %w", err)
	}
	return users, nil
}

// Count returns the number of live users matching the filter.
func (r *userRepository) Count(ctx context.Context, filter UserFilter) (int, error) {
	clause, args := filter.where()
	query := `SELECT COUNT(*) FROM users WHERE ` + clause

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Update persists mutable profile fields.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET name = $2, avatar = $3, profile = $4, role = $5, updated_at = $6
		WHERE id = $1 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Avatar, user.Profile, user.Role, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SoftDelete flags the user deleted without removing the row.
func (r *userRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE users SET is_delete = TRUE, updated_at = $2 WHERE id = $1 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure userRepository implements UserRepository at compile time.
var _ UserRepository = (*userRepository)(nil)
