// Package llm wraps the model API used by the code generation agent.
package llm

import "context"

// Client is the completion interface the agent depends on. Implementations
// must be safe for concurrent use.
type Client interface {
	// Complete sends one system+user exchange and returns the model's text.
	Complete(ctx context.Context, system, prompt string) (string, error)
}
