// Package ai provides the tutoring and quiz-generation gateway on top of a generative
// text provider.
package ai

import (
	"context"
	"fmt"
)

// TaskType defines the kind of AI task, used for logging and accounting.
type TaskType int

const (
	TaskTutoring TaskType = iota
	TaskQuizGeneration
)

func (t TaskType) String() string {
	switch t {
	case TaskTutoring:
		return "tutoring"
	case TaskQuizGeneration:
		return "quiz_generation"
	default:
		return "unknown"
	}
}

// Role is the author of a message. The zero value is not a valid role.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleAssistant
	RoleSystem
)

// ParseRole accepts "user", "assistant", "system" and the provider alias "model".
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "assistant", "model":
		return RoleAssistant, nil
	case "system":
		return RoleSystem, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "invalid"
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RoleUser && r <= RoleSystem
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Message represents a chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`

	// ResponseMIMEType and ResponseSchema request structured output.
	ResponseMIMEType string         `json:"response_mime_type,omitempty"`
	ResponseSchema   map[string]any `json:"response_schema,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// StreamChunk represents a streaming response chunk. The final chunk has Done set and
// carries token usage; a failed stream ends with a chunk carrying Error.
type StreamChunk struct {
	Content      string
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface AI providers implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
