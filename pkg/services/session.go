package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/audit"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
	"github.com/forgelab-io/forge-engine/pkg/workspace"
)

// Session binds one live agent run to exactly one (user, workspace, app)
// triple. The guard and file toolset it carries are scoped to that workspace
// for the whole session.
type Session struct {
	ID            uuid.UUID
	App           *models.App
	UserID        int64
	WorkspacePath string
	Guard         *workspace.Guard
	Files         *workspace.Files

	orch     *SessionOrchestrator
	released bool
	mu       sync.Mutex
}

// End releases the app lock. Safe to call more than once. Ending a session
// never forces a state transition: an aborted generating session leaves the
// app generating so a later session can resume it.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.orch.release(s.App.ID, s.ID)
}

// SessionOrchestrator serializes sessions per app. The per-app lock is the
// sole serialization point: it is held for the whole session (coarse), so a
// busy rejection is accurate across all the small operations inside one run,
// while sessions on different apps proceed fully in parallel.
type SessionOrchestrator struct {
	resolver *workspace.Resolver
	apps     repositories.AppRepository
	trail    *audit.Trail
	logger   *zap.Logger

	mu     sync.Mutex
	active map[int64]uuid.UUID // app ID to the session holding the lock
}

// NewSessionOrchestrator creates a session orchestrator.
func NewSessionOrchestrator(resolver *workspace.Resolver, apps repositories.AppRepository, trail *audit.Trail, logger *zap.Logger) *SessionOrchestrator {
	return &SessionOrchestrator{
		resolver: resolver,
		apps:     apps,
		trail:    trail,
		logger:   logger.Named("session"),
		active:   make(map[int64]uuid.UUID),
	}
}

// Begin starts a session for the user's app. A second Begin while another
// session holds the app returns ErrAppBusy immediately; requests are never
// queued. The workspace directory is created if it does not exist yet.
func (o *SessionOrchestrator) Begin(ctx context.Context, userID, appID int64) (*Session, error) {
	app, err := o.apps.GetByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, fmt.Errorf("app %d does not belong to user %d: %w", appID, userID, apperrors.ErrForbidden)
	}

	sessionID := uuid.New()

	o.mu.Lock()
	if holder, busy := o.active[appID]; busy {
		o.mu.Unlock()
		o.logger.Warn("Rejected concurrent session",
			zap.Int64("app_id", appID),
			zap.String("holder", holder.String()))
		return nil, fmt.Errorf("app %d: %w", appID, apperrors.ErrAppBusy)
	}
	o.active[appID] = sessionID
	o.mu.Unlock()

	session, err := o.build(sessionID, app, userID)
	if err != nil {
		o.release(appID, sessionID)
		return nil, err
	}

	o.logger.Info("Session started",
		zap.String("session_id", sessionID.String()),
		zap.Int64("app_id", appID),
		zap.Int64("user_id", userID),
		zap.String("workspace", session.WorkspacePath))
	return session, nil
}

func (o *SessionOrchestrator) build(sessionID uuid.UUID, app *models.App, userID int64) (*Session, error) {
	path, err := o.resolver.Resolve(
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(app.ID, 10),
		app.Name,
	)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %q: %w", path, err)
	}

	guard, err := workspace.NewGuard(sessionID, path, o.trail)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:            sessionID,
		App:           app,
		UserID:        userID,
		WorkspacePath: path,
		Guard:         guard,
		Files:         workspace.NewFiles(guard),
		orch:          o,
	}, nil
}

func (o *SessionOrchestrator) release(appID int64, sessionID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if holder, ok := o.active[appID]; ok && holder == sessionID {
		delete(o.active, appID)
		o.logger.Info("Session ended",
			zap.String("session_id", sessionID.String()),
			zap.Int64("app_id", appID))
	}
}
