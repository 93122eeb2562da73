// Package workspace confines every agent file and command operation to one
// per-(user, app) directory. The resolver derives the directory, the guard
// decides whether an operation may touch a path inside it.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
)

// joinSeparator joins the tenant fields into a directory name. It must never
// appear unescaped inside userID or appID, otherwise two tenants could
// resolve to the same directory.
const joinSeparator = "_"

// Resolver derives workspace directories under a fixed base directory.
type Resolver struct {
	baseDir string
}

// NewResolver creates a resolver rooted at baseDir, which must be absolute.
func NewResolver(baseDir string) (*Resolver, error) {
	if !filepath.IsAbs(baseDir) {
		return nil, fmt.Errorf("workspace base dir must be absolute, got %q: %w", baseDir, apperrors.ErrInvalidIdentifier)
	}
	return &Resolver{baseDir: filepath.Clean(baseDir)}, nil
}

// BaseDir returns the configured base directory.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Resolve returns the single workspace path for the (userID, appID, appName)
// triple. The result is deterministic, and distinct (userID, appID) pairs
// always produce distinct paths: the identifiers may not contain the join
// separator, so the prefix "<userID>_<appID>_" is unambiguous. The app name
// is cosmetic and is sanitized rather than validated.
func (r *Resolver) Resolve(userID, appID, appName string) (string, error) {
	if err := validateIdentifier("user id", userID); err != nil {
		return "", err
	}
	if err := validateIdentifier("app id", appID); err != nil {
		return "", err
	}

	name := sanitizeName(appName)
	if name == "" {
		return "", fmt.Errorf("app name %q is empty after sanitization: %w", appName, apperrors.ErrInvalidIdentifier)
	}

	dir := userID + joinSeparator + appID + joinSeparator + name
	return filepath.Join(r.baseDir, dir), nil
}

// validateIdentifier rejects identifiers that could break path derivation.
// Identifiers are canonical primary keys; they are validated, never rewritten.
func validateIdentifier(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is empty: %w", field, apperrors.ErrInvalidIdentifier)
	}
	if strings.Contains(value, joinSeparator) {
		return fmt.Errorf("%s %q contains reserved separator %q: %w", field, value, joinSeparator, apperrors.ErrInvalidIdentifier)
	}
	if strings.ContainsAny(value, `/\`) || strings.Contains(value, "..") {
		return fmt.Errorf("%s %q contains path characters: %w", field, value, apperrors.ErrInvalidIdentifier)
	}
	return nil
}

// sanitizeName strips anything from the display name that could influence
// the derived path: separators, traversal sequences and control characters.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == rune(joinSeparator[0]):
			continue
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(strings.TrimSpace(b.String()), ".")
}
