package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Retry defaults for ChatJSON.
const (
	// DefaultMaxRetries is the total number of completion attempts.
	DefaultMaxRetries = 3

	// baseBackoff is the delay before the second attempt; it doubles
	// on each subsequent attempt (1s, 2s, ...).
	baseBackoff = 1 * time.Second
)

// correctiveInstruction is appended to the conversation after a parse
// failure. Retrying a non-deterministic generator with the identical
// prompt rarely fixes a structural problem; an explicit instruction
// measurably does.
const correctiveInstruction = "Your previous response was not valid JSON. " +
	"Respond with ONLY a valid JSON object: no prose, no markdown fences, " +
	"no trailing commas, and escape special characters inside strings."

// JSONResult carries the parsed object plus the raw exchange metadata.
type JSONResult[T any] struct {
	// Data is the decoded object.
	Data T
	// Raw is the verbatim response text that parsed successfully.
	Raw string
	// Model is the model that produced the response.
	Model string
	// Usage is the accumulated token usage across all attempts.
	Usage *TokenUsage
}

// JSONOption configures ChatJSON.
type JSONOption func(*jsonConfig)

type jsonConfig struct {
	maxRetries int
	backoff    time.Duration
}

// WithMaxRetries overrides the attempt budget.
func WithMaxRetries(n int) JSONOption {
	return func(cfg *jsonConfig) {
		if n > 0 {
			cfg.maxRetries = n
		}
	}
}

// WithBackoff overrides the base backoff delay. Intended for tests.
func WithBackoff(d time.Duration) JSONOption {
	return func(cfg *jsonConfig) { cfg.backoff = d }
}

// ChatJSON sends the conversation and decodes the response into T.
//
// Three layers defend against the fact that a text-generation API does
// not guarantee syntactically valid JSON: the request is sent with
// ResponseFormat "json_object"; the server is assumed to strip fences
// and attempt repair before the text reaches this client; and on a
// decode failure the conversation is extended with a corrective
// instruction and retried after an exponential delay. After the retry
// budget is exhausted ChatJSON returns *ParseError carrying the last
// raw response. Transport errors are never retried here; they
// propagate to the caller unchanged.
func ChatJSON[T any](ctx context.Context, c Client, req ChatRequest, opts ...JSONOption) (*JSONResult[T], error) {
	cfg := jsonConfig{maxRetries: DefaultMaxRetries, backoff: baseBackoff}
	for _, opt := range opts {
		opt(&cfg)
	}

	req.ResponseFormat = "json_object"

	// Work on a private copy of the conversation; retries append to it.
	messages := make([]Message, len(req.Messages))
	copy(messages, req.Messages)

	usage := &TokenUsage{}
	var (
		lastRaw string
		lastErr error
	)

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 1 {
			// 1s, 2s, 4s, ... before attempts 2, 3, 4, ...
			delay := cfg.backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req.Messages = messages
		resp, err := c.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Usage != nil {
			usage.Add(*resp.Usage)
		}
		lastRaw = resp.Content

		var data T
		if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &data); err != nil {
			lastErr = err
			messages = append(messages,
				Message{Role: RoleAssistant, Content: resp.Content},
				Message{Role: RoleUser, Content: correctiveInstruction},
			)
			continue
		}

		return &JSONResult[T]{
			Data:  data,
			Raw:   resp.Content,
			Model: resp.Model,
			Usage: usage,
		}, nil
	}

	return nil, &ParseError{Raw: lastRaw, Attempts: cfg.maxRetries, Err: lastErr}
}
