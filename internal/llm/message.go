package llm

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single normalized conversation turn sent to a provider.
// Content is text plus optional attachments; tool traffic is carried by
// ToolCall/ToolResult and only appears inside provider round-trips.
type Message struct {
	Role        Role              `json:"role"`
	Text        string            `json:"text,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Timestamp   time.Time         `json:"timestamp,omitempty"`
}

// ToolCall records a model-initiated tool invocation.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult carries the application-provided response to a tool call.
type ToolResult struct {
	ID      string         `json:"id"`
	Text    string         `json:"text,omitempty"`
	JSON    map[string]any `json:"json,omitempty"`
	PNG     []byte         `json:"-"`
	IsError bool           `json:"is_error,omitempty"`
}

// Usage reports token consumption for a request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// UserText builds a plain text user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text, Timestamp: time.Now()}
}

// AssistantText builds a plain text assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Text: text, Timestamp: time.Now()}
}
