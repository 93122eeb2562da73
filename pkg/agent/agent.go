// Package agent turns an app's init prompt into source files inside the
// session workspace. It is the "generation process" of the platform: the
// lifecycle only sees its opaque success or failure, and every file it
// writes goes through the session's guarded toolset.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/llm"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/retry"
	"github.com/forgelab-io/forge-engine/pkg/workspace"
)

const systemPromptTemplate = `You are a code generation agent building a %s application.
Produce complete, runnable source files for the user's request.
Emit every file as a block of the form:

<file path="relative/path/from/project/root">
...full file content...
</file>

Use only relative paths. Do not reference files outside the project.`

// fileBlockRe captures <file path="...">...</file> blocks emitted by the model.
var fileBlockRe = regexp.MustCompile(`(?s)<file path="([^"]+)">\n?(.*?)</file>`)

// Agent drives one LLM round per generation run and materializes the result.
type Agent struct {
	client llm.Client
	logger *zap.Logger
}

// New creates an agent on top of an LLM client.
func New(client llm.Client, logger *zap.Logger) *Agent {
	return &Agent{client: client, logger: logger.Named("agent")}
}

// Generate asks the model for the app's files and writes them through the
// guarded toolset. Transient API failures are retried; a denied write is not,
// since a denial is terminal for that operation.
func (a *Agent) Generate(ctx context.Context, files *workspace.Files, app *models.App) error {
	system := fmt.Sprintf(systemPromptTemplate, app.CodeGenType)

	reply, err := retry.DoWithResultIf(ctx, retry.DefaultConfig(), func() (string, error) {
		return a.client.Complete(ctx, system, app.InitPrompt)
	})
	if err != nil {
		return fmt.Errorf("model call failed: %w", err)
	}

	generated := parseFileBlocks(reply)
	if len(generated) == 0 {
		if app.CodeGenType == models.CodeGenTypeHTML {
			// Single-page apps may come back as one raw document.
			generated = []generatedFile{{path: "index.html", content: reply}}
		} else {
			return fmt.Errorf("model reply contained no file blocks")
		}
	}

	for _, f := range generated {
		if err := files.WriteFile(f.path, []byte(f.content)); err != nil {
			return fmt.Errorf("failed to materialize %q: %w", f.path, err)
		}
		a.logger.Info("File generated",
			zap.Int64("app_id", app.ID),
			zap.String("path", f.path),
			zap.Int("bytes", len(f.content)))
	}

	a.logger.Info("Generation run finished",
		zap.Int64("app_id", app.ID),
		zap.Int("files", len(generated)))
	return nil
}

type generatedFile struct {
	path    string
	content string
}

// parseFileBlocks extracts the file blocks from a model reply, preserving
// their order. Block content keeps its trailing newline if present.
func parseFileBlocks(reply string) []generatedFile {
	matches := fileBlockRe.FindAllStringSubmatch(reply, -1)
	out := make([]generatedFile, 0, len(matches))
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		if path == "" {
			continue
		}
		out = append(out, generatedFile{path: path, content: m[2]})
	}
	return out
}
