package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
)

// LifecycleService drives an app through its generation and deployment
// states. All transitions are validated against models.AppStatus and
// persisted with guarded updates, so misuse surfaces as ErrInvalidTransition
// rather than silent state corruption.
type LifecycleService interface {
	// StartGeneration moves the app into generating. Requires a non-empty
	// init prompt and a valid code generation type. Calling it on an app that
	// is already generating is an idempotent no-op.
	StartGeneration(ctx context.Context, appID int64) (*models.App, error)

	// CompleteGeneration records that the external generation process
	// finished. No content validation happens here; that is the generator's
	// concern.
	CompleteGeneration(ctx context.Context, appID int64) error

	// Deploy takes a generated app through deploying to deployed. A first
	// deploy allocates a globally-unique deploy key with bounded
	// retry-on-collision; a redeploy keeps the existing key and only
	// refreshes the deployed timestamp.
	Deploy(ctx context.Context, appID int64) (*models.App, error)

	// Delete soft-deletes the app. Deleting an app that is already deleted
	// is an idempotent no-op.
	Delete(ctx context.Context, appID int64) error
}

type lifecycleService struct {
	apps repositories.AppRepository
	keys DeployKeyGenerator
	// maxKeyAttempts bounds deploy-key collision retries before the deploy
	// fails with ErrDeployKeyExhausted.
	maxKeyAttempts int
	logger         *zap.Logger
}

// NewLifecycleService creates a lifecycle service.
func NewLifecycleService(apps repositories.AppRepository, keys DeployKeyGenerator, maxKeyAttempts int, logger *zap.Logger) LifecycleService {
	return &lifecycleService{
		apps:           apps,
		keys:           keys,
		maxKeyAttempts: maxKeyAttempts,
		logger:         logger.Named("lifecycle"),
	}
}

// load fetches the app and maps soft-deleted rows to ErrInvalidTransition:
// deleted is terminal, so any transition attempted from it is a usage error,
// not a missing record.
func (s *lifecycleService) load(ctx context.Context, appID int64) (*models.App, error) {
	app, err := s.apps.GetByIDIncludeDeleted(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.IsDelete || app.Status == models.AppStatusDeleted {
		return nil, fmt.Errorf("app %d is deleted: %w", appID, apperrors.ErrInvalidTransition)
	}
	return app, nil
}

func (s *lifecycleService) StartGeneration(ctx context.Context, appID int64) (*models.App, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}

	if app.Status == models.AppStatusGenerating {
		return app, nil
	}

	if app.InitPrompt == "" {
		return nil, fmt.Errorf("app %d has no init prompt: %w", appID, apperrors.ErrInvalidTransition)
	}
	if !models.IsValidCodeGenType(app.CodeGenType) {
		return nil, fmt.Errorf("app %d has invalid code generation type %q: %w", appID, app.CodeGenType, apperrors.ErrInvalidTransition)
	}
	if !app.Status.CanTransitionTo(models.AppStatusGenerating) {
		return nil, fmt.Errorf("cannot start generation from %q: %w", app.Status, apperrors.ErrInvalidTransition)
	}

	if err := s.apps.CompareAndSetStatus(ctx, appID, app.Status, models.AppStatusGenerating); err != nil {
		return nil, err
	}
	app.Status = models.AppStatusGenerating

	s.logger.Info("Generation started",
		zap.Int64("app_id", appID),
		zap.String("code_gen_type", string(app.CodeGenType)))
	return app, nil
}

func (s *lifecycleService) CompleteGeneration(ctx context.Context, appID int64) error {
	app, err := s.load(ctx, appID)
	if err != nil {
		return err
	}
	if !app.Status.CanTransitionTo(models.AppStatusGenerated) {
		return fmt.Errorf("cannot complete generation from %q: %w", app.Status, apperrors.ErrInvalidTransition)
	}

	if err := s.apps.CompareAndSetStatus(ctx, appID, app.Status, models.AppStatusGenerated); err != nil {
		return err
	}

	s.logger.Info("Generation completed", zap.Int64("app_id", appID))
	return nil
}

func (s *lifecycleService) Deploy(ctx context.Context, appID int64) (*models.App, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !app.Status.CanTransitionTo(models.AppStatusDeploying) {
		return nil, fmt.Errorf("cannot deploy from %q: %w", app.Status, apperrors.ErrInvalidTransition)
	}

	if err := s.apps.CompareAndSetStatus(ctx, appID, app.Status, models.AppStatusDeploying); err != nil {
		return nil, err
	}

	deployedAt := time.Now()

	// Redeploy keeps the original key so the published URL stays stable.
	if app.IsDeployed() {
		if err := s.apps.RefreshDeployedTime(ctx, appID, deployedAt); err != nil {
			return nil, err
		}
		app.Status = models.AppStatusDeployed
		app.DeployedTime = &deployedAt
		s.logger.Info("App redeployed",
			zap.Int64("app_id", appID),
			zap.String("deploy_key", *app.DeployKey))
		return app, nil
	}

	// First deploy: insert-then-retry against the unique index. No pre-check,
	// so concurrent deploys of different apps cannot race past each other.
	for attempt := 1; attempt <= s.maxKeyAttempts; attempt++ {
		key := s.keys.Generate()
		err := s.apps.AssignDeployKey(ctx, appID, key, deployedAt)
		if err == nil {
			app.Status = models.AppStatusDeployed
			app.DeployKey = &key
			app.DeployedTime = &deployedAt
			s.logger.Info("App deployed",
				zap.Int64("app_id", appID),
				zap.String("deploy_key", key),
				zap.Int("attempts", attempt))
			return app, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		s.logger.Warn("Deploy key collision, retrying",
			zap.Int64("app_id", appID),
			zap.Int("attempt", attempt))
	}

	// Leave the app in a deployable state before surfacing the exhaustion.
	if err := s.apps.CompareAndSetStatus(ctx, appID, models.AppStatusDeploying, models.AppStatusGenerated); err != nil {
		s.logger.Error("Failed to roll back deploying status", zap.Int64("app_id", appID), zap.Error(err))
	}
	return nil, fmt.Errorf("no unique deploy key after %d attempts: %w", s.maxKeyAttempts, apperrors.ErrDeployKeyExhausted)
}

func (s *lifecycleService) Delete(ctx context.Context, appID int64) error {
	app, err := s.apps.GetByIDIncludeDeleted(ctx, appID)
	if err != nil {
		return err
	}
	if app.IsDelete || app.Status == models.AppStatusDeleted {
		return nil // already deleted, idempotent
	}

	if err := s.apps.SoftDelete(ctx, appID); err != nil {
		// A concurrent delete winning the race is still a successful delete.
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}

	s.logger.Info("App deleted", zap.Int64("app_id", appID))
	return nil
}

// Ensure lifecycleService implements LifecycleService at compile time.
var _ LifecycleService = (*lifecycleService)(nil)
