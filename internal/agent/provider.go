// Package agent runs the model call loop for one conversational turn: it
// sends the session history to the configured model provider, executes any
// tool calls the model requests, and parses the structured final reply.
package agent

import (
	"context"
	"encoding/json"

	"github.com/regdesk/regdesk/pkg/models"
)

// Provider is the model backend contract. Implementations must be safe for
// concurrent use; the dispatcher may run turns for many sessions at once.
type Provider interface {
	// Complete sends one request and returns the full completion.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the provider name used in logs and metrics.
	Name() string
}

// CompletionRequest contains all parameters for one model round-trip.
type CompletionRequest struct {
	// Model is the provider model id. Empty means the provider default.
	Model string `json:"model"`

	// System carries the resolved agent instructions for the current step.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools the model may call this turn.
	Tools []ToolSpec `json:"tools,omitempty"`

	// MaxTokens bounds the response length. Zero means the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage is one message in the conversation sent to the provider.
// Role is "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// Completion is the model's full response to one request.
type Completion struct {
	// Text is the assistant text, empty when the model only called tools.
	Text string `json:"text,omitempty"`

	// ToolCalls the model requested this round.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// StopReason is the provider's stop reason, normalized to lowercase.
	StopReason string `json:"stop_reason,omitempty"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ToolSpec describes one tool to the provider.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// Tool is an executable tool exposed to the model.
type Tool interface {
	// Name returns the tool name for model function calling.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Operational failures are reported through
	// ToolResult with IsError set so the model can recover; a non-nil error
	// aborts the turn.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	// Content is the tool output sent back to the model.
	Content string `json:"content"`

	// IsError marks an operational failure the model should explain or retry.
	IsError bool `json:"is_error,omitempty"`

	// ErrKind is a short machine-readable failure class, e.g. "invalid_params"
	// or "db_unavailable". Empty on success.
	ErrKind string `json:"err_kind,omitempty"`
}
