// Package repositories contains the PostgreSQL data access layer.
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

// AppFilter narrows List and Count results.
type AppFilter struct {
	UserID      *int64
	Name        string // substring match
	CodeGenType models.CodeGenType
	Offset      int
	Limit       int
}

// AppRepository defines the interface for app data access.
type AppRepository interface {
	Create(ctx context.Context, app *models.App) error
	GetByID(ctx context.Context, id int64) (*models.App, error)
	// GetByIDIncludeDeleted also returns soft-deleted apps, so lifecycle code
	// can tell "never existed" apart from "deleted".
	GetByIDIncludeDeleted(ctx context.Context, id int64) (*models.App, error)
	GetByDeployKey(ctx context.Context, deployKey string) (*models.App, error)
	List(ctx context.Context, filter AppFilter) ([]*models.App, error)
	Count(ctx context.Context, filter AppFilter) (int, error)
	Update(ctx context.Context, app *models.App) error
	// CompareAndSetStatus moves the app from one status to another in a single
	// guarded update. Returns ErrConflict if the app is no longer in the
	// expected status, ErrNotFound if it does not exist or is soft-deleted.
	CompareAndSetStatus(ctx context.Context, id int64, from, to models.AppStatus) error
	// AssignDeployKey atomically sets deploy key, deployed time and the
	// deployed status. Returns ErrConflict when the key collides with the
	// global unique index so the caller can retry with a fresh candidate.
	AssignDeployKey(ctx context.Context, id int64, deployKey string, deployedTime time.Time) error
	// RefreshDeployedTime finishes a redeploy that keeps the existing key.
	RefreshDeployedTime(ctx context.Context, id int64, deployedTime time.Time) error
	SoftDelete(ctx context.Context, id int64) error
}

// appRepository implements AppRepository using PostgreSQL.
type appRepository struct {
	db *database.DB
}

// NewAppRepository creates a new app repository.
func NewAppRepository(db *database.DB) AppRepository {
	return &appRepository{db: db}
}

const appColumns = `id, name, cover, init_prompt, code_gen_type, deploy_key, deployed_time,
	priority, user_id, status, created_at, updated_at, is_delete`

func scanApp(row pgx.Row) (*models.App, error) {
	var app models.App
	err := row.Scan(
		&app.ID,
		&app.Name,
		&app.Cover,
		&app.InitPrompt,
		&app.CodeGenType,
		&app.DeployKey,
		&app.DeployedTime,
		&app.Priority,
		&app.UserID,
		&app.Status,
		&app.CreatedAt,
		&app.UpdatedAt,
		&app.IsDelete,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &app, nil
}

// Create inserts a new app in the initialized state.
func (r *appRepository) Create(ctx context.Context, app *models.App) error {
	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.AppStatusInitialized
	}

	query := `
		INSERT INTO apps (name, cover, init_prompt, code_gen_type, priority, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		app.Name,
		app.Cover,
		app.InitPrompt,
		app.CodeGenType,
		app.Priority,
		app.UserID,
		app.Status,
		app.CreatedAt,
		app.UpdatedAt,
	).Scan(&app.ID)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	return nil
}

// GetByID retrieves a live (not soft-deleted) app by ID.
func (r *appRepository) GetByID(ctx context.Context, id int64) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE id = $1 AND is_delete = FALSE`

	app, err := scanApp(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

// GetByIDIncludeDeleted retrieves an app regardless of its soft-delete flag.
func (r *appRepository) GetByIDIncludeDeleted(ctx context.Context, id int64) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE id = $1`

	app, err := scanApp(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

// GetByDeployKey retrieves a live app by its deploy key.
func (r *appRepository) GetByDeployKey(ctx context.Context, deployKey string) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE deploy_key = $1 AND is_delete = FALSE`

	app, err := scanApp(r.db.QueryRow(ctx, query, deployKey))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get app by deploy key: %w", err)
	}
	return app, nil
}

func (f AppFilter) where() (string, []any) {
	clause := "is_delete = FALSE"
	args := []any{}
	n := 1
	if f.UserID != nil {
		clause += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, *f.UserID)
		n++
	}
	if f.Name != "" {
		clause += fmt.Sprintf(" AND name ILIKE $%d", n)
		args = append(args, "%"+f.Name+"%")
		n++
	}
	if f.CodeGenType != "" {
		clause += fmt.Sprintf(" AND code_gen_type = $%d", n)
		args = append(args, f.CodeGenType)
		n++
	}
	return clause, args
}

// List returns apps matching the filter ordered by priority then recency.
func (r *appRepository) List(ctx context.Context, filter AppFilter) ([]*models.App, error) {
	clause, args := filter.where()
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM apps WHERE %s
		ORDER BY priority DESC, created_at DESC
		OFFSET %d LIMIT %d`, appColumns, clause, filter.Offset, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var apps []*models.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read app rows: %w", err)
	}
	return apps, nil
}

// Count returns the number of apps matching the filter.
func (r *appRepository) Count(ctx context.Context, filter AppFilter) (int, error) {
	clause, args := filter.where()
	query := `SELECT COUNT(*) FROM apps WHERE ` + clause

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count apps: %w", err)
	}
	return count, nil
}

// Update persists the mutable descriptive fields of an app.
func (r *appRepository) Update(ctx context.Context, app *models.App) error {
	app.UpdatedAt = time.Now()

	query := `
		UPDATE apps
		SET name = $2, cover = $3, init_prompt = $4, code_gen_type = $5, priority = $6, updated_at = $7
		WHERE id = $1 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query,
		app.ID, app.Name, app.Cover, app.InitPrompt, app.CodeGenType, app.Priority, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CompareAndSetStatus performs a guarded status transition.
func (r *appRepository) CompareAndSetStatus(ctx context.Context, id int64, from, to models.AppStatus) error {
	query := `
		UPDATE apps
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query, id, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set app status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing app from a lost status race.
		if _, err := r.GetByID(ctx, id); errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConflict
	}
	return nil
}

// AssignDeployKey sets key, timestamp and deployed status in one statement so
// the three fields can never diverge. The unique index on deploy_key is the only
// collision check; a violation surfaces as ErrConflict for the retry loop.
func (r *appRepository) AssignDeployKey(ctx context.Context, id int64, deployKey string, deployedTime time.Time) error {
	query := `
		UPDATE apps
		SET deploy_key = $2, deployed_time = $3, status = $4, updated_at = $3
		WHERE id = $1 AND status = $5 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query, id, deployKey, deployedTime, models.AppStatusDeployed, models.AppStatusDeploying)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to assign deploy key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

// RefreshDeployedTime completes a redeploy that reuses the existing key.
func (r *appRepository) RefreshDeployedTime(ctx context.Context, id int64, deployedTime time.Time) error {
	query := `
		UPDATE apps
		SET deployed_time = $2, status = $3, updated_at = $2
		WHERE id = $1 AND status = $4 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query, id, deployedTime, models.AppStatusDeployed, models.AppStatusDeploying)
	if err != nil {
		return fmt.Errorf("failed to refresh deployed time: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

// SoftDelete flags the app deleted without removing the row.
func (r *appRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `
		UPDATE apps
		SET is_delete = TRUE, status = $2, updated_at = $3
		WHERE id = $1 AND is_delete = FALSE`

	result, err := r.db.Exec(ctx, query, id, models.AppStatusDeleted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure appRepository implements AppRepository at compile time.
var _ AppRepository = (*appRepository)(nil)
