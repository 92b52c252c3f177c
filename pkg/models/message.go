// Package models defines the shared types used across the registration
// backend: chat messages, session context, registration records, and
// payment-provider webhook events.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// AgentName identifies which agent variant last handled a session.
type AgentName string

const (
	AgentNone            AgentName = "none"
	AgentGeneric         AgentName = "generic"
	AgentNewRegistration AgentName = "new_registration"
	AgentReRegistration  AgentName = "re_registration"
)

// System marker prefixes. Messages carrying these are preserved across
// history eviction.
const (
	MarkerAgentTransition  = "AGENT_TRANSITION"
	MarkerUploadedFilePath = "UPLOADED_FILE_PATH:"
)

// Message is a single entry in a session's chat history.
type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Preserved reports whether the message survives history eviction. Tool
// records and system markers stay so downstream agents keep continuity.
func (m *Message) Preserved() bool {
	if m == nil {
		return false
	}
	if m.Role == RoleTool {
		return true
	}
	if m.Role == RoleSystem {
		return strings.HasPrefix(m.Content, MarkerAgentTransition) ||
			strings.HasPrefix(m.Content, MarkerUploadedFilePath)
	}
	return false
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// CodeContext is a parsed registration code. Immutable once set on a session.
type CodeContext struct {
	Series         string `json:"series"`
	Team           string `json:"team"`
	AgeGroup       string `json:"age_group"`
	Season         string `json:"season"`
	Classification string `json:"classification"` // new_registration | re_registration
}

// PendingUpload tracks a photo that is being processed for a session.
type PendingUpload struct {
	TempPath     string `json:"temp_path"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
}

// Snapshot is one entry of the conversation snapshot persisted to the
// registration record at the photo-upload step.
type Snapshot struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SnapshotHistory converts a history slice into the persisted snapshot form.
func SnapshotHistory(history []*Message) []Snapshot {
	out := make([]Snapshot, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		out = append(out, Snapshot{Role: m.Role, Content: m.Content})
	}
	return out
}
