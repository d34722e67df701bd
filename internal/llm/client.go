// Package llm provides the structured-text oracle client used by the workflow
// agents. The oracle speaks an OpenAI-compatible chat completions protocol;
// every agent call is prompt in, JSON document out.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Client communicates with the chat completions gateway
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
}

// ClientConfig contains configuration for the LLM client
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Breaker, when set, gates every request through the oracle circuit
	// breaker. Nil means no breaker (tests, CLI tools).
	Breaker *gobreaker.CircuitBreaker
}

// NewClient creates a client over the configured gateway. Zero-value config
// fields fall back to the local gateway defaults.
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8080/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		breaker:     config.Breaker,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Complete sends a chat completion request, routed through the circuit
// breaker when one is configured.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	if c.breaker == nil {
		return c.complete(ctx, messages)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, messages)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ChatResponse), nil
}

func (c *Client) complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	req, err := c.buildRequest(ctx, messages)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("endpoint", c.endpoint).
		Str("model", c.model).
		Int("message_count", len(messages)).
		Msg("Sending LLM request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LLMError{Op: "complete", Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LLMError{Op: "complete", Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &LLMError{Op: "complete", Err: gatewayError(resp.StatusCode, body)}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &LLMError{Op: "complete", Err: fmt.Errorf("parse response: %w", err)}
	}

	log.Debug().
		Str("model", chatResp.Model).
		Int("prompt_tokens", chatResp.Usage.PromptTokens).
		Int("completion_tokens", chatResp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("LLM request completed")

	return &chatResp, nil
}

func (c *Client) buildRequest(ctx context.Context, messages []ChatMessage) (*http.Request, error) {
	payload, err := json.Marshal(ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, &LLMError{Op: "complete", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &LLMError{Op: "complete", Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// gatewayError prefers the structured error body when the gateway sends one.
func gatewayError(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("API error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("API error (status %d): %s", status, string(body))
}

// CompleteWithSystem sends a system prompt plus a user prompt and returns the
// first choice's content.
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.Complete(ctx, []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return "", err
	}

	content := resp.FirstContent()
	if content == "" {
		return "", &LLMError{Op: "complete", Err: fmt.Errorf("no choices in response")}
	}
	return content, nil
}

// CompleteWithRetry retries failed completions with quadratic backoff.
// Context cancellation aborts the wait between attempts.
func (c *Client) CompleteWithRetry(ctx context.Context, messages []ChatMessage, maxRetries int) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying LLM request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.Complete(ctx, messages)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return nil, &LLMError{Op: "complete", Err: fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)}
}

// ParseJSONResponse unmarshals an oracle reply into target, tolerating
// markdown code fences around the document.
func (c *Client) ParseJSONResponse(content string, target interface{}) error {
	if err := json.Unmarshal([]byte(ExtractJSON(content)), target); err != nil {
		return &LLMError{Op: "parse", Err: fmt.Errorf("parse JSON response: %w", err)}
	}
	return nil
}

// ExtractJSON strips a markdown code fence around a JSON document, if
// present. Content without a fence is returned trimmed.
func ExtractJSON(content string) string {
	fenced := content
	if idx := strings.Index(fenced, "```json"); idx >= 0 {
		fenced = fenced[idx+len("```json"):]
	} else if idx := strings.Index(fenced, "```"); idx >= 0 {
		fenced = fenced[idx+len("```"):]
	} else {
		return strings.TrimSpace(content)
	}

	if end := strings.Index(fenced, "```"); end >= 0 {
		fenced = fenced[:end]
	} else {
		// Unclosed fence, fall back to the original text.
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(fenced)
}
