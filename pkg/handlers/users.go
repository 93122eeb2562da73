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

// UpdateUserRequest for PUT /api/users/{id}; nil fields are left unchanged.
// Only administrators may set role.
type UpdateUserRequest struct {
	Name    *string `json:"name,omitempty"`
	Avatar  *string `json:"avatar,omitempty"`
	Profile *string `json:"profile,omitempty"`
	Role    *string `json:"role,omitempty"`
}

// UserListResponse for GET /api/users
type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
}

// UserHandler handles account management HTTP requests.
type UserHandler struct {
	users  services.UserService
	logger *zap.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// RegisterRoutes registers the user handler's routes on the given mux.
// Listing and deleting accounts are admin operations; the rest only need a
// valid token, with self-or-admin checks in the service.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/users/me", authMiddleware.RequireAuth(h.Me))
	mux.HandleFunc("GET /api/users", authMiddleware.RequireAdmin(h.List))
	mux.HandleFunc("GET /api/users/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/users/{id}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/users/{id}", authMiddleware.RequireAdmin(h.Delete))
}

// parseUserID reads the {id} path parameter.
func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_id", "user ID must be an integer")
		return 0, false
	}
	return id, true
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}

	if err := WriteJSON(w, http.StatusOK, toUserResponse(user)); err != nil {
		h.logger.Error("Failed to encode current user response", zap.Error(err))
	}
}

// Get handles GET /api/users/{id}. Users may look themselves up; anyone else
// requires an administrator.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if id != actor.ID && !actor.IsAdmin() {
		_ = ErrorResponse(w, http.StatusForbidden, "forbidden", "cannot view another user")
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, toUserResponse(user)); err != nil {
		h.logger.Error("Failed to encode get user response", zap.Error(err))
	}
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repositories.UserFilter{
		Account: q.Get("account"),
		Name:    q.Get("name"),
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

	users, total, err := h.users.List(r.Context(), actor, filter)
	if err != nil {
		h.logger.Error("Failed to list users", zap.Int64("actor_id", actor.ID), zap.Error(err))
		_ = ServiceError(w, err)
		return
	}

	response := UserListResponse{Users: make([]UserResponse, 0, len(users)), Total: total}
	for _, user := range users {
		response.Users = append(response.Users, toUserResponse(user))
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode list users response", zap.Error(err))
	}
}

// Update handles PUT /api/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	user, err := h.users.Update(r.Context(), actor, id, services.UpdateUserInput{
		Name:    req.Name,
		Avatar:  req.Avatar,
		Profile: req.Profile,
		Role:    req.Role,
	})
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, toUserResponse(user)); err != nil {
		h.logger.Error("Failed to encode update user response", zap.Error(err))
	}
}

// Delete handles DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.users)
	if !ok {
		return
	}
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), actor, id); err != nil {
		_ = ServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requestActor loads the authenticated user behind the request. Roles are
// read from the database rather than the token so a demotion takes effect
// immediately.
func requestActor(w http.ResponseWriter, r *http.Request, users services.UserService) (*models.User, bool) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil, false
	}
	user, err := users.Get(r.Context(), userID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		return nil, false
	}
	return user, true
}
