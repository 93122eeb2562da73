package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
)

// maxGrepResults caps the matches returned from one search.
const maxGrepResults = 100

// Files is the guarded file toolset handed to the generation agent. Every
// call is checked by the session's guard before it touches the filesystem,
// so the agent can only ever materialize code inside its workspace.
type Files struct {
	guard *Guard
}

// NewFiles binds the toolset to a guard.
func NewFiles(guard *Guard) *Files {
	return &Files{guard: guard}
}

// Match is one grep result line.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func denied(d AccessDecision) error {
	return fmt.Errorf("%s %q: %s: %w", d.Operation, d.Path, d.Reason, apperrors.ErrAccessDenied)
}

// Mkdir creates a directory (and missing parents) inside the workspace.
func (f *Files) Mkdir(dirPath string) error {
	d := f.guard.Check(OpCreate, dirPath)
	if !d.Allowed {
		return denied(d)
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dirPath, err)
	}
	return nil
}

// WriteFile writes content to a file, creating it and any parent directories
// if needed, overwriting it otherwise.
func (f *Files) WriteFile(filePath string, content []byte) error {
	d := f.guard.Check(OpWrite, filePath)
	if !d.Allowed {
		return denied(d)
	}
	if err := os.MkdirAll(filepath.Dir(d.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %q: %w", filePath, err)
	}
	if err := os.WriteFile(d.Path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file %q: %w", filePath, err)
	}
	return nil
}

// ReadFile returns a file's content.
func (f *Files) ReadFile(filePath string) ([]byte, error) {
	d := f.guard.Check(OpRead, filePath)
	if !d.Allowed {
		return nil, denied(d)
	}
	content, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filePath, err)
	}
	return content, nil
}

// Remove deletes a file or an empty directory.
func (f *Files) Remove(path string) error {
	d := f.guard.Check(OpDelete, path)
	if !d.Allowed {
		return denied(d)
	}
	if err := os.Remove(d.Path); err != nil {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return nil
}

// ListDir returns the sorted entry names of a directory.
func (f *Files) ListDir(dirPath string) ([]string, error) {
	d := f.guard.Check(OpRead, dirPath)
	if !d.Allowed {
		return nil, denied(d)
	}
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %q: %w", dirPath, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Glob returns workspace-relative paths matching pattern under the workspace
// root. Entries that resolve outside the workspace (e.g. via a planted
// symlink) are skipped, mirroring the per-result re-validation the agent
// toolset has always done.
func (f *Files) Glob(pattern string) ([]string, error) {
	d := f.guard.Check(OpRead, ".")
	if !d.Allowed {
		return nil, denied(d)
	}
	matches, err := filepath.Glob(filepath.Join(f.guard.Root(), pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	var out []string
	for _, m := range matches {
		md := f.guard.Check(OpRead, m)
		if !md.Allowed {
			continue
		}
		rel, err := filepath.Rel(f.guard.Root(), md.Path)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

// Grep searches files under dirPath for a regular expression and returns up
// to maxGrepResults matches with line numbers.
func (f *Files) Grep(dirPath, pattern string) ([]Match, error) {
	d := f.guard.Check(OpRead, dirPath)
	if !d.Allowed {
		return nil, denied(d)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}

	var results []Match
	walkErr := filepath.WalkDir(d.Path, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() || len(results) >= maxGrepResults {
			return err
		}
		fd := f.guard.Check(OpRead, path)
		if !fd.Allowed {
			return nil // skip entries that escape via symlinks
		}
		file, err := os.Open(fd.Path)
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		defer file.Close()

		rel, relErr := filepath.Rel(f.guard.Root(), fd.Path)
		if relErr != nil {
			return nil
		}

		scanner := bufio.NewScanner(file)
		for line := 1; scanner.Scan() && len(results) < maxGrepResults; line++ {
			if re.MatchString(scanner.Text()) {
				results = append(results, Match{Path: rel, Line: line, Content: scanner.Text()})
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("search failed under %q: %w", dirPath, walkErr)
	}
	return results, nil
}
