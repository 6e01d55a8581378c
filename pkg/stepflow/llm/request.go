// Package llm provides a typed client for an LLM chat-completion HTTP
// boundary, plus a retrying layer that turns an unreliable text channel
// into strongly-typed JSON objects.
package llm

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest configures one completion call.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty"`

	// ResponseFormat biases the model toward a specific output shape.
	// ChatJSON sets this to "json_object".
	ResponseFormat string `json:"responseFormat,omitempty"`
}

// ChatResponse is the output of one completion call.
type ChatResponse struct {
	Content string      `json:"content"`
	Model   string      `json:"model"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
