package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/models"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrInvalidToken         = errors.New("invalid token")
)

const issuer = "forge-engine"

// TokenService issues and validates the JWTs forge-engine mints at login.
// This abstraction enables clean separation between HTTP handling and token
// logic, making both easier to test.
type TokenService interface {
	// Issue mints a signed token for the user, valid for the configured TTL.
	Issue(user *models.User) (string, error)

	// Validate parses and verifies a token string and returns its claims.
	Validate(tokenString string) (*Claims, error)

	// ValidateRequest extracts a bearer token from the Authorization header
	// and validates it. Returns the claims and the raw token string.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

// tokenService implements TokenService with HS256 and a shared signing key.
type tokenService struct {
	signingKey []byte
	ttl        time.Duration
	logger     *zap.Logger
}

// NewTokenService creates a token service.
func NewTokenService(signingKey string, ttl time.Duration, logger *zap.Logger) TokenService {
	return &tokenService{
		signingKey: []byte(signingKey),
		ttl:        ttl,
		logger:     logger.Named("auth"),
	}
}

func (s *tokenService) Issue(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Account: user.Account,
		Role:    user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *tokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *tokenService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return nil, "", ErrMissingAuthorization
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return nil, "", ErrInvalidAuthFormat
	}

	claims, err := s.Validate(parts[1])
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return nil, "", err
	}
	return claims, parts[1], nil
}

// Ensure tokenService implements TokenService at compile time.
var _ TokenService = (*tokenService)(nil)
