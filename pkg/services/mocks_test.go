package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
)

// mockAppRepository is an in-memory AppRepository with the same guarded-update
// semantics as the PostgreSQL implementation.
type mockAppRepository struct {
	mu        sync.Mutex
	nextID    int64
	apps      map[int64]*models.App
	takenKeys map[string]bool

	// keyConflicts forces the next N AssignDeployKey calls to report a
	// collision, simulating a contended unique index.
	keyConflicts int
}

func newMockAppRepository() *mockAppRepository {
	return &mockAppRepository{
		apps:      make(map[int64]*models.App),
		takenKeys: make(map[string]bool),
	}
}

// seed stores an app directly, bypassing Create defaults.
func (m *mockAppRepository) seed(app *models.App) *models.App {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.ID == 0 {
		m.nextID++
		app.ID = m.nextID
	} else if app.ID > m.nextID {
		m.nextID = app.ID
	}
	if app.DeployKey != nil {
		m.takenKeys[*app.DeployKey] = true
	}
	clone := *app
	m.apps[app.ID] = &clone
	return app
}

func cloneApp(app *models.App) *models.App {
	clone := *app
	return &clone
}

func (m *mockAppRepository) Create(ctx context.Context, app *models.App) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	app.ID = m.nextID
	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.AppStatusInitialized
	}
	m.apps[app.ID] = cloneApp(app)
	return nil
}

func (m *mockAppRepository) GetByID(ctx context.Context, id int64) (*models.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.IsDelete {
		return nil, apperrors.ErrNotFound
	}
	return cloneApp(app), nil
}

func (m *mockAppRepository) GetByIDIncludeDeleted(ctx context.Context, id int64) (*models.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneApp(app), nil
}

func (m *mockAppRepository) GetByDeployKey(ctx context.Context, deployKey string) (*models.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.apps {
		if !app.IsDelete && app.DeployKey != nil && *app.DeployKey == deployKey {
			return cloneApp(app), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAppRepository) List(ctx context.Context, filter repositories.AppFilter) ([]*models.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.App
	for _, app := range m.apps {
		if app.IsDelete {
			continue
		}
		if filter.UserID != nil && app.UserID != *filter.UserID {
			continue
		}
		out = append(out, cloneApp(app))
	}
	return out, nil
}

func (m *mockAppRepository) Count(ctx context.Context, filter repositories.AppFilter) (int, error) {
	apps, err := m.List(ctx, filter)
	return len(apps), err
}

func (m *mockAppRepository) Update(ctx context.Context, app *models.App) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.apps[app.ID]
	if !ok || current.IsDelete {
		return apperrors.ErrNotFound
	}
	current.Name = app.Name
	current.Cover = app.Cover
	current.InitPrompt = app.InitPrompt
	current.CodeGenType = app.CodeGenType
	current.Priority = app.Priority
	current.UpdatedAt = time.Now()
	return nil
}

func (m *mockAppRepository) CompareAndSetStatus(ctx context.Context, id int64, from, to models.AppStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.IsDelete {
		return apperrors.ErrNotFound
	}
	if app.Status != from {
		return apperrors.ErrConflict
	}
	app.Status = to
	app.UpdatedAt = time.Now()
	return nil
}

func (m *mockAppRepository) AssignDeployKey(ctx context.Context, id int64, deployKey string, deployedTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyConflicts > 0 {
		m.keyConflicts--
		return apperrors.ErrConflict
	}
	if m.takenKeys[deployKey] {
		return apperrors.ErrConflict
	}
	app, ok := m.apps[id]
	if !ok || app.IsDelete || app.Status != models.AppStatusDeploying {
		return apperrors.ErrInvalidTransition
	}
	key := deployKey
	t := deployedTime
	app.DeployKey = &key
	app.DeployedTime = &t
	app.Status = models.AppStatusDeployed
	app.UpdatedAt = t
	m.takenKeys[key] = true
	return nil
}

func (m *mockAppRepository) RefreshDeployedTime(ctx context.Context, id int64, deployedTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.IsDelete || app.Status != models.AppStatusDeploying {
		return apperrors.ErrInvalidTransition
	}
	t := deployedTime
	app.DeployedTime = &t
	app.Status = models.AppStatusDeployed
	app.UpdatedAt = t
	return nil
}

func (m *mockAppRepository) SoftDelete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok || app.IsDelete {
		return apperrors.ErrNotFound
	}
	app.IsDelete = true
	app.Status = models.AppStatusDeleted
	app.UpdatedAt = time.Now()
	return nil
}

var _ repositories.AppRepository = (*mockAppRepository)(nil)

// mockUserRepository is an in-memory UserRepository.
type mockUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[int64]*models.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Account == user.Account {
			return apperrors.ErrConflict
		}
	}
	m.nextID++
	user.ID = m.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.IsDelete {
		return nil, apperrors.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *mockUserRepository) GetByAccount(ctx context.Context, account string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if !user.IsDelete && user.Account == account {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockUserRepository) matching(filter repositories.UserFilter) []*models.User {
	var matched []*models.User
	for _, user := range m.users {
		if user.IsDelete {
			continue
		}
		if filter.Account != "" && !strings.Contains(user.Account, filter.Account) {
			continue
		}
		if filter.Name != "" && !strings.Contains(user.Name, filter.Name) {
			continue
		}
		matched = append(matched, user)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

func (m *mockUserRepository) List(ctx context.Context, filter repositories.UserFilter) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.matching(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	var page []*models.User
	for i := filter.Offset; i < len(matched) && len(page) < limit; i++ {
		clone := *matched[i]
		page = append(page, &clone)
	}
	return page, nil
}

func (m *mockUserRepository) Count(ctx context.Context, filter repositories.UserFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(filter)), nil
}

func (m *mockUserRepository) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[user.ID]
	if !ok || current.IsDelete {
		return apperrors.ErrNotFound
	}
	current.Name = user.Name
	current.Avatar = user.Avatar
	current.Profile = user.Profile
	current.Role = user.Role
	current.UpdatedAt = time.Now()
	return nil
}

func (m *mockUserRepository) SoftDelete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.IsDelete {
		return apperrors.ErrNotFound
	}
	user.IsDelete = true
	return nil
}

var _ repositories.UserRepository = (*mockUserRepository)(nil)

// seqKeyGenerator hands out deterministic keys so tests can assert which
// candidate won.
type seqKeyGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *seqKeyGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("key%d", g.next)
}
