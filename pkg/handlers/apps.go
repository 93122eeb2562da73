package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/auth"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
	"github.com/forgelab-io/forge-engine/pkg/services"
)

// CreateAppRequest for POST /api/apps
type CreateAppRequest struct {
	Name        string  `json:"name"`
	Cover       *string `json:"cover,omitempty"`
	InitPrompt  string  `json:"init_prompt"`
	CodeGenType string  `json:"code_gen_type"`
	Priority    int     `json:"priority"`
}

// UpdateAppRequest for PUT /api/apps/{id}; nil fields are left unchanged.
type UpdateAppRequest struct {
	Name        *string `json:"name,omitempty"`
	Cover       *string `json:"cover,omitempty"`
	InitPrompt  *string `json:"init_prompt,omitempty"`
	CodeGenType *string `json:"code_gen_type,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// AppListResponse for GET /api/apps
type AppListResponse struct {
	Apps  []*models.App `json:"apps"`
	Total int           `json:"total"`
}

// AppHandler handles app management and lifecycle HTTP requests.
type AppHandler struct {
	apps   services.AppService
	users  services.UserService
	logger *zap.Logger
}

// NewAppHandler creates a new app handler.
func NewAppHandler(apps services.AppService, users services.UserService, logger *zap.Logger) *AppHandler {
	return &AppHandler{apps: apps, users: users, logger: logger}
}

// RegisterRoutes registers the app handler's routes on the given mux.
func (h *AppHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/apps", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/apps", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/apps/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/apps/{id}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/apps/{id}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("POST /api/apps/{id}/generate", authMiddleware.RequireAuth(h.Generate))
	mux.HandleFunc("POST /api/apps/{id}/deploy", authMiddleware.RequireAuth(h.Deploy))

	// Published apps resolve by key without authentication.
	mux.HandleFunc("GET /api/deployed/{key}", h.GetDeployed)
}

// parseAppID reads the {id} path parameter.
func parseAppID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_id", "app ID must be an integer")
		return 0, false
	}
	return id, true
}

// Create handles POST /api/apps
func (h *AppHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}

	var req CreateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	app, err := h.apps.Create(r.Context(), user.ID, services.CreateAppInput{
		Name:        req.Name,
		Cover:       req.Cover,
		InitPrompt:  req.InitPrompt,
		CodeGenType: models.CodeGenType(req.CodeGenType),
		Priority:    req.Priority,
	})
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, app); err != nil {
		h.logger.Error("Failed to encode create app response", zap.Error(err))
	}
}

// Get handles GET /api/apps/{id}
func (h *AppHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAppID(w, r)
	if !ok {
		return
	}

	app, err := h.apps.Get(r.Context(), id)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, app); err != nil {
		h.logger.Error("Failed to encode get app response", zap.Error(err))
	}
}

// List handles GET /api/apps. Regular users see their own apps; an admin may
// pass user_id to inspect another account's list.
func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repositories.AppFilter{
		Name:        q.Get("name"),
		CodeGenType: models.CodeGenType(q.Get("code_gen_type")),
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	ownerID := user.ID
	if v := q.Get("user_id"); v != "" && user.IsAdmin() {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			ownerID = n
		}
	}
	filter.UserID = &ownerID

	apps, total, err := h.apps.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list apps", zap.Int64("user_id", user.ID), zap.Error(err))
		_ = ServiceError(w, err)
		return
	}
	if apps == nil {
		apps = []*models.App{}
	}

	if err := WriteJSON(w, http.StatusOK, AppListResponse{Apps: apps, Total: total}); err != nil {
		h.logger.Error("Failed to encode list apps response", zap.Error(err))
	}
}

// Update handles PUT /api/apps/{id}
func (h *AppHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseAppID(w, r)
	if !ok {
		return
	}

	var req UpdateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	in := services.UpdateAppInput{
		Name:       req.Name,
		Cover:      req.Cover,
		InitPrompt: req.InitPrompt,
		Priority:   req.Priority,
	}
	if req.CodeGenType != nil {
		t := models.CodeGenType(*req.CodeGenType)
		in.CodeGenType = &t
	}

	app, err := h.apps.Update(r.Context(), user, id, in)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, app); err != nil {
		h.logger.Error("Failed to encode update app response", zap.Error(err))
	}
}

// Delete handles DELETE /api/apps/{id}
func (h *AppHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseAppID(w, r)
	if !ok {
		return
	}

	if err := h.apps.Delete(r.Context(), user, id); err != nil {
		_ = ServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /api/apps/{id}/generate
func (h *AppHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseAppID(w, r)
	if !ok {
		return
	}

	app, err := h.apps.Generate(r.Context(), user, id)
	if err != nil {
		h.logger.Warn("Generation request failed",
			zap.Int64("app_id", id),
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, app); err != nil {
		h.logger.Error("Failed to encode generate response", zap.Error(err))
	}
}

// GetDeployed handles GET /api/deployed/{key}
func (h *AppHandler) GetDeployed(w http.ResponseWriter, r *http.Request) {
	app, err := h.apps.GetByDeployKey(r.Context(), r.PathValue("key"))
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, app); err != nil {
		h.logger.Error("Failed to encode deployed app response", zap.Error(err))
	}
}

// Deploy handles POST /api/apps/{id}/deploy
func (h *AppHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseAppID(w, r)
	if !ok {
		return
	}

	app, err := h.apps.Deploy(r.Context(), user, id)
	if err != nil {
		h.logger.Warn("Deploy request failed",
			zap.Int64("app_id", id),
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, app); err != nil {
		h.logger.Error("Failed to encode deploy response", zap.Error(err))
	}
}
