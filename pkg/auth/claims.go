// Package auth provides JWT-based authentication for forge-engine.
// Tokens are issued at login and validated with a shared signing key.
package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgelab-io/forge-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims is the JWT claims structure issued by forge-engine. Subject carries
// the user ID as a decimal string; Role mirrors the user's role at issue time.
type Claims struct {
	jwt.RegisteredClaims
	Account string `json:"account,omitempty"`
	Role    string `json:"role,omitempty"`
}

// UserID parses the subject back into a user ID.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return id, nil
}

// IsAdmin reports whether the token was issued for an administrator.
func (c *Claims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// RequireUserID extracts the authenticated user ID from context and returns
// an error if the request is not authenticated.
func RequireUserID(ctx context.Context) (int64, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return 0, fmt.Errorf("authentication required: no claims in context")
	}
	return claims.UserID()
}
