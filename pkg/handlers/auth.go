package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/auth"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/services"
)

// RegisterRequest for POST /api/auth/register
type RegisterRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest for POST /api/auth/login
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// UserResponse is the public view of a user; the password hash never leaves
// the service layer.
type UserResponse struct {
	ID      int64   `json:"id"`
	Account string  `json:"account"`
	Name    string  `json:"name"`
	Avatar  *string `json:"avatar,omitempty"`
	Profile *string `json:"profile,omitempty"`
	Role    string  `json:"role"`
}

// LoginResponse for POST /api/auth/login
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:      user.ID,
		Account: user.Account,
		Name:    user.Name,
		Avatar:  user.Avatar,
		Profile: user.Profile,
		Role:    user.Role,
	}
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	users  services.UserService
	tokens auth.TokenService
	logger *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users services.UserService, tokens auth.TokenService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", authMiddleware.RequireAuth(h.Logout))
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	user, err := h.users.Register(r.Context(), req.Account, req.Password, req.Name)
	if err != nil {
		h.logger.Warn("Registration failed",
			zap.String("account", req.Account),
			zap.Error(err))
		_ = ServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, toUserResponse(user)); err != nil {
		h.logger.Error("Failed to encode register response", zap.Error(err))
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Account, req.Password)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("Failed to issue token",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "token_issue_failed", "internal server error")
		return
	}

	response := LoginResponse{Token: token, User: toUserResponse(user)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode login response", zap.Error(err))
	}
}

// Logout handles POST /api/auth/logout. Tokens are self-contained and cannot
// be revoked server-side; the client discards its copy. The endpoint exists
// so logouts are authenticated and show up in the logs.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	h.logger.Info("User logged out", zap.Int64("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}
