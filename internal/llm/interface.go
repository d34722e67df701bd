package llm

import "context"

// Oracle defines the interface the workflow agents use to reach the LLM.
// Agents never see transport details; they hand over prompts and get back
// structured text.
type Oracle interface {
	// Complete sends a chat completion request with the given messages
	Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error)

	// CompleteWithRetry attempts completion with retries on transient failures
	CompleteWithRetry(ctx context.Context, messages []ChatMessage, maxRetries int) (*ChatResponse, error)

	// CompleteWithSystem is a convenience method for system + user prompts
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ParseJSONResponse extracts and parses JSON from LLM response content
	ParseJSONResponse(content string, target interface{}) error
}

// Ensure Client implements Oracle
var _ Oracle = (*Client)(nil)
