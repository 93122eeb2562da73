package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/forgelab-io/forge-engine/pkg/audit"
)

// Operation classifies what an agent wants to do with a path.
type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpCreate  Operation = "create"
	OpDelete  Operation = "delete"
	OpExecute Operation = "execute"
)

// AccessDecision is the outcome of one guard check. It is ephemeral: produced
// per operation, logged to the audit trail, never persisted. A denial is
// terminal for that operation; callers must not retry with a mutated path.
type AccessDecision struct {
	Allowed    bool
	Operation  Operation
	Path       string // normalized absolute path inside the workspace when allowed
	Privileged bool
	Reason     string
}

// Guard mediates every filesystem and process-execution request of one
// session against its workspace boundary. Checks are stateless and safe for
// concurrent use.
type Guard struct {
	sessionID uuid.UUID
	root      string // symlink-resolved workspace root
	trail     *audit.Trail
}

// NewGuard scopes a guard to the given workspace root. The root is resolved
// through symlinks up front so later containment checks compare like with
// like; it must be an absolute path.
func NewGuard(sessionID uuid.UUID, root string, trail *audit.Trail) (*Guard, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("workspace root must be absolute, got %q", root)
	}
	resolved, err := resolveExisting(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %q: %w", root, err)
	}
	return &Guard{sessionID: sessionID, root: resolved, trail: trail}, nil
}

// Root returns the resolved workspace root the guard is bound to.
func (g *Guard) Root() string {
	return g.root
}

// Check decides whether the operation may touch targetPath. Relative paths
// are interpreted against the workspace root; absolute paths are accepted
// only when they resolve inside it. `..` segments and symbolic links are
// resolved before the containment test, so no spelling of an outside path
// is ever allowed.
func (g *Guard) Check(op Operation, targetPath string) AccessDecision {
	return g.check(op, targetPath, false)
}

// CheckExec decides an execute operation. The privileged flag records that
// the caller declared elevated execution; the guard neither grants nor
// removes privilege, it only ensures the target is path-confined and keeps
// the declaration in the audit record.
func (g *Guard) CheckExec(targetPath string, privileged bool) AccessDecision {
	return g.check(OpExecute, targetPath, privileged)
}

func (g *Guard) check(op Operation, targetPath string, privileged bool) AccessDecision {
	decision := g.evaluate(op, targetPath, privileged)
	g.trail.Record(audit.AccessEvent{
		SessionID:  g.sessionID,
		Operation:  string(op),
		Path:       decision.Path,
		Allowed:    decision.Allowed,
		Privileged: privileged,
		Reason:     decision.Reason,
	})
	return decision
}

func (g *Guard) evaluate(op Operation, targetPath string, privileged bool) AccessDecision {
	deny := func(reason string) AccessDecision {
		return AccessDecision{Allowed: false, Operation: op, Path: targetPath, Privileged: privileged, Reason: reason}
	}

	if targetPath == "" {
		return deny("empty path")
	}
	if strings.ContainsRune(targetPath, 0) {
		return deny("path contains NUL byte")
	}

	abs := targetPath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.root, abs)
	}
	abs = filepath.Clean(abs)

	resolved, err := resolveExisting(abs)
	if err != nil {
		return deny(fmt.Sprintf("cannot resolve path: %v", err))
	}

	if !contains(g.root, resolved) {
		return deny("path escapes workspace")
	}

	return AccessDecision{Allowed: true, Operation: op, Path: resolved, Privileged: privileged}
}

// contains reports whether path is root itself or lexically below it. Both
// arguments must already be clean, absolute and symlink-free.
func contains(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// resolveExisting resolves symlinks in the deepest existing ancestor of path
// and re-appends the non-existing remainder. This catches symlinks that point
// outside the workspace while still allowing checks on files that are about
// to be created.
func resolveExisting(path string) (string, error) {
	remainder := make([]string, 0, 4)
	current := path

	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", err // hit the filesystem root without finding anything
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}
