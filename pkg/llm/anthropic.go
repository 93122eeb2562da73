package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient creates a client for the given model.
func NewAnthropicClient(apiKey, model string, maxTokens int) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Complete sends the prompt and returns the first text block of the response.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    system,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages request failed: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("response contained no text block")
}

var _ Client = (*AnthropicClient)(nil)
