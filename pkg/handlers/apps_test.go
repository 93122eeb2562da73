package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/auth"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
	"github.com/forgelab-io/forge-engine/pkg/services"
)

// fakeAppService serves one app owned by user 1.
type fakeAppService struct {
	app *models.App
}

func (f *fakeAppService) Create(ctx context.Context, userID int64, in services.CreateAppInput) (*models.App, error) {
	if in.Name == "" {
		return nil, apperrors.ErrInvalidIdentifier
	}
	return &models.App{ID: 2, Name: in.Name, UserID: userID, Status: models.AppStatusInitialized}, nil
}

func (f *fakeAppService) Get(ctx context.Context, id int64) (*models.App, error) {
	if id == f.app.ID {
		return f.app, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeAppService) GetByDeployKey(ctx context.Context, key string) (*models.App, error) {
	if f.app.DeployKey != nil && *f.app.DeployKey == key {
		return f.app, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeAppService) List(ctx context.Context, filter repositories.AppFilter) ([]*models.App, int, error) {
	return []*models.App{f.app}, 1, nil
}

func (f *fakeAppService) Update(ctx context.Context, actor *models.User, id int64, in services.UpdateAppInput) (*models.App, error) {
	return f.app, nil
}

func (f *fakeAppService) Delete(ctx context.Context, actor *models.User, id int64) error {
	if id != f.app.ID {
		return apperrors.ErrNotFound
	}
	return nil
}

func (f *fakeAppService) Generate(ctx context.Context, actor *models.User, id int64) (*models.App, error) {
	return nil, apperrors.ErrAppBusy
}

func (f *fakeAppService) Deploy(ctx context.Context, actor *models.User, id int64) (*models.App, error) {
	return f.app, nil
}

func newAppHandlerFixture(t *testing.T) (*AppHandler, string) {
	t.Helper()
	key := "abc123xyz789"
	app := &models.App{
		ID:          7,
		Name:        "todo-list",
		UserID:      1,
		Status:      models.AppStatusDeployed,
		CodeGenType: models.CodeGenTypeHTML,
		DeployKey:   &key,
	}

	tokens := auth.NewTokenService("handler-test-key", 30*time.Minute, zap.NewNop())
	users := &fakeUserService{users: []*models.User{{ID: 1, Account: "alice", Role: models.RoleUser}}}
	h := NewAppHandler(&fakeAppService{app: app}, users, zap.NewNop())

	token, err := tokens.Issue(users.users[0])
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return h, token
}

// do runs a request against a mux with the handler's routes registered.
func doAppRequest(t *testing.T, h *AppHandler, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	tokens := auth.NewTokenService("handler-test-key", 30*time.Minute, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, auth.NewMiddleware(tokens, zap.NewNop()))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAppHandler_Get(t *testing.T) {
	h, token := newAppHandlerFixture(t)

	t.Run("existing app", func(t *testing.T) {
		rec := doAppRequest(t, h, token, http.MethodGet, "/api/apps/7", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var app models.App
		if err := json.NewDecoder(rec.Body).Decode(&app); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if app.ID != 7 {
			t.Errorf("expected app 7, got %d", app.ID)
		}
	})

	t.Run("unknown app", func(t *testing.T) {
		rec := doAppRequest(t, h, token, http.MethodGet, "/api/apps/99", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := doAppRequest(t, h, token, http.MethodGet, "/api/apps/seven", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("no token", func(t *testing.T) {
		rec := doAppRequest(t, h, "", http.MethodGet, "/api/apps/7", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAppHandler_Create(t *testing.T) {
	h, token := newAppHandlerFixture(t)

	rec := doAppRequest(t, h, token, http.MethodPost, "/api/apps",
		`{"name":"notes","init_prompt":"build a notes app","code_gen_type":"html"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var app models.App
	if err := json.NewDecoder(rec.Body).Decode(&app); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if app.Name != "notes" {
		t.Errorf("expected name 'notes', got %q", app.Name)
	}
}

func TestAppHandler_Generate_Busy(t *testing.T) {
	h, token := newAppHandlerFixture(t)

	rec := doAppRequest(t, h, token, http.MethodPost, "/api/apps/7/generate", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "app_busy" {
		t.Errorf("expected 'app_busy', got %q", body["error"])
	}
}

func TestAppHandler_GetDeployed(t *testing.T) {
	h, _ := newAppHandlerFixture(t)

	t.Run("resolves without authentication", func(t *testing.T) {
		rec := doAppRequest(t, h, "", http.MethodGet, "/api/deployed/abc123xyz789", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := doAppRequest(t, h, "", http.MethodGet, "/api/deployed/nosuchkey", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}
