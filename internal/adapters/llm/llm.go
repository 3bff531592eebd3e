// Package llm implements the chat-completion client of spec §6, grounded
// on the async create-task/poll-status HTTP shape of the teacher's
// internal/kie/client.go, adapted to a synchronous chat-completions call
// (OpenAI-compatible) since the session engine needs the reply inline,
// not via a job queue.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

// Message is one chat turn in the OpenAI-compatible request format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting for credit-ledger debits.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	CachedTokens     int `json:"cached_tokens"`
}

// Reply is the model's response plus the usage it cost.
type Reply struct {
	Text  string
	Usage Usage
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	breaker    *breaker.Breaker
	log        *slog.Logger
}

// New builds a Client against baseURL using apiKey and model, wrapping
// every call with the given circuit breaker.
func New(baseURL, apiKey, model string, timeout time.Duration, br *breaker.Breaker, log *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    br,
		log:        log,
	}
}

// Complete sends messages and returns the assistant's reply.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64) (*Reply, error) {
	var reply *Reply
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		r, err := c.complete(ctx, messages, temperature)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	return reply, err
}

func (c *Client) complete(ctx context.Context, messages []Message, temperature float64) (*Reply, error) {
	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "llm", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "llm", Cause: err}
	}

	if err := statusError(resp.StatusCode, raw); err != nil {
		if c.log != nil {
			c.log.Error("llm: request failed", "status", resp.StatusCode, "body", truncate(raw))
		}
		return nil, err
	}

	var parsed struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &apperr.PermanentExternalError{Adapter: "llm", Cause: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &apperr.PermanentExternalError{Adapter: "llm", Cause: fmt.Errorf("empty choices in response")}
	}

	return &Reply{Text: parsed.Choices[0].Message.Content, Usage: parsed.Usage}, nil
}

func statusError(status int, body []byte) error {
	if status < 300 {
		return nil
	}
	if status == http.StatusTooManyRequests {
		return &apperr.RateLimitedError{RetryAfter: 5 * time.Second}
	}
	if status >= 500 {
		return &apperr.TransientExternalError{Adapter: "llm", Cause: fmt.Errorf("status %d: %s", status, truncate(body))}
	}
	return &apperr.PermanentExternalError{Adapter: "llm", Cause: fmt.Errorf("status %d: %s", status, truncate(body))}
}

func truncate(body []byte) string {
	const max = 500
	if len(body) > max {
		return string(body[:max]) + "...(truncated)"
	}
	return string(body)
}
