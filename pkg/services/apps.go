package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
	"github.com/forgelab-io/forge-engine/pkg/workspace"
)

// CodeGenerator is the external generation process: it consumes the session's
// guarded file toolset and the app's init prompt, and reports completion as an
// opaque success or failure. Content is never validated here.
type CodeGenerator interface {
	Generate(ctx context.Context, files *workspace.Files, app *models.App) error
}

// CreateAppInput carries the fields a user supplies when creating an app.
type CreateAppInput struct {
	Name        string
	Cover       *string
	InitPrompt  string
	CodeGenType models.CodeGenType
	Priority    int
}

// UpdateAppInput carries optional updates; nil fields are left unchanged.
type UpdateAppInput struct {
	Name        *string
	Cover       *string
	InitPrompt  *string
	CodeGenType *models.CodeGenType
	Priority    *int
}

// AppService exposes app management plus the generate and deploy operations
// that run under a session.
type AppService interface {
	Create(ctx context.Context, userID int64, in CreateAppInput) (*models.App, error)
	Get(ctx context.Context, id int64) (*models.App, error)
	// GetByDeployKey resolves a published app by its deploy key. Apps that
	// are not currently deployed resolve as not found.
	GetByDeployKey(ctx context.Context, key string) (*models.App, error)
	List(ctx context.Context, filter repositories.AppFilter) ([]*models.App, int, error)
	Update(ctx context.Context, actor *models.User, id int64, in UpdateAppInput) (*models.App, error)
	Delete(ctx context.Context, actor *models.User, id int64) error
	Generate(ctx context.Context, actor *models.User, id int64) (*models.App, error)
	Deploy(ctx context.Context, actor *models.User, id int64) (*models.App, error)
}

type appService struct {
	apps      repositories.AppRepository
	lifecycle LifecycleService
	sessions  *SessionOrchestrator
	generator CodeGenerator
	logger    *zap.Logger
}

// NewAppService creates an app service.
func NewAppService(
	apps repositories.AppRepository,
	lifecycle LifecycleService,
	sessions *SessionOrchestrator,
	generator CodeGenerator,
	logger *zap.Logger,
) AppService {
	return &appService{
		apps:      apps,
		lifecycle: lifecycle,
		sessions:  sessions,
		generator: generator,
		logger:    logger.Named("apps"),
	}
}

func (s *appService) Create(ctx context.Context, userID int64, in CreateAppInput) (*models.App, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("app name is required: %w", apperrors.ErrInvalidIdentifier)
	}
	if !models.IsValidCodeGenType(in.CodeGenType) {
		return nil, fmt.Errorf("unknown code generation type %q: %w", in.CodeGenType, apperrors.ErrInvalidIdentifier)
	}

	app := &models.App{
		Name:        in.Name,
		Cover:       in.Cover,
		InitPrompt:  in.InitPrompt,
		CodeGenType: in.CodeGenType,
		Priority:    in.Priority,
		UserID:      userID,
		Status:      models.AppStatusInitialized,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, err
	}

	s.logger.Info("App created",
		zap.Int64("app_id", app.ID),
		zap.Int64("user_id", userID),
		zap.String("code_gen_type", string(app.CodeGenType)))
	return app, nil
}

func (s *appService) Get(ctx context.Context, id int64) (*models.App, error) {
	return s.apps.GetByID(ctx, id)
}

func (s *appService) GetByDeployKey(ctx context.Context, key string) (*models.App, error) {
	if key == "" {
		return nil, fmt.Errorf("deploy key is required: %w", apperrors.ErrInvalidIdentifier)
	}
	app, err := s.apps.GetByDeployKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if app.Status != models.AppStatusDeployed {
		return nil, apperrors.ErrNotFound
	}
	return app, nil
}

func (s *appService) List(ctx context.Context, filter repositories.AppFilter) ([]*models.App, int, error) {
	apps, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.apps.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// requireOwnerOrAdmin mirrors the access rule for destructive app changes:
// the owner may act, and so may an administrator.
func requireOwnerOrAdmin(actor *models.User, app *models.App) error {
	if actor.ID == app.UserID || actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("user %d may not modify app %d: %w", actor.ID, app.ID, apperrors.ErrForbidden)
}

func (s *appService) Update(ctx context.Context, actor *models.User, id int64, in UpdateAppInput) (*models.App, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(actor, app); err != nil {
		return nil, err
	}

	if in.Name != nil {
		app.Name = *in.Name
	}
	if in.Cover != nil {
		app.Cover = in.Cover
	}
	if in.InitPrompt != nil {
		app.InitPrompt = *in.InitPrompt
	}
	if in.CodeGenType != nil {
		if !models.IsValidCodeGenType(*in.CodeGenType) {
			return nil, fmt.Errorf("unknown code generation type %q: %w", *in.CodeGenType, apperrors.ErrInvalidIdentifier)
		}
		app.CodeGenType = *in.CodeGenType
	}
	if in.Priority != nil {
		app.Priority = *in.Priority
	}

	if err := s.apps.Update(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *appService) Delete(ctx context.Context, actor *models.User, id int64) error {
	app, err := s.apps.GetByIDIncludeDeleted(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(actor, app); err != nil {
		return err
	}
	return s.lifecycle.Delete(ctx, id)
}

// Generate runs the code generation agent for the app inside a fresh session.
// Only the owner may generate; an administrator cannot run agents against
// another user's workspace.
func (s *appService) Generate(ctx context.Context, actor *models.User, id int64) (*models.App, error) {
	session, err := s.sessions.Begin(ctx, actor.ID, id)
	if err != nil {
		return nil, err
	}
	defer session.End()

	app, err := s.lifecycle.StartGeneration(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.generator.Generate(ctx, session.Files, app); err != nil {
		// The app stays generating: partial output may be valid and a later
		// session can resume.
		s.logger.Error("Generation failed",
			zap.Int64("app_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("generation failed for app %d: %w", id, err)
	}

	if err := s.lifecycle.CompleteGeneration(ctx, id); err != nil {
		return nil, err
	}
	app.Status = models.AppStatusGenerated
	return app, nil
}

// Deploy publishes a generated app under its deploy key, holding the session
// lock so a deploy cannot interleave with a generation run on the same app.
func (s *appService) Deploy(ctx context.Context, actor *models.User, id int64) (*models.App, error) {
	session, err := s.sessions.Begin(ctx, actor.ID, id)
	if err != nil {
		return nil, err
	}
	defer session.End()

	return s.lifecycle.Deploy(ctx, id)
}

// Ensure appService implements AppService at compile time.
var _ AppService = (*appService)(nil)
