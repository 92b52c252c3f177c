package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/retry"
	"github.com/regdesk/regdesk/pkg/models"
)

// MaxToolRounds bounds the number of tool-execution rounds in one turn. A
// model stuck re-calling tools fails the turn instead of spinning.
const MaxToolRounds = 8

// Loop drives one conversational turn against the provider.
type Loop struct {
	provider    Provider
	model       string
	maxTokens   int
	callTimeout time.Duration
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Provider    Provider
	Model       string
	MaxTokens   int
	CallTimeout time.Duration
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// NewLoop creates the turn loop.
func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Loop{
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		callTimeout: callTimeout,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// TurnInput is everything the loop needs for one turn. History already
// includes the new user message.
type TurnInput struct {
	Agent    models.AgentName
	System   string
	History  []models.Message
	Registry *ToolRegistry
}

// ToolOutcome is one executed tool call, surfaced so the dispatcher can act
// on tool output (for example capturing the computed age group).
type ToolOutcome struct {
	Name    string
	Content string
	IsError bool
	ErrKind string
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	FinalReply

	// ToolRecords are the compact summaries to append to the session history.
	ToolRecords []string

	// ToolOutcomes are the raw results of every tool executed this turn.
	ToolOutcomes []ToolOutcome

	Rounds int
}

// Run executes the turn: repeated model calls with tool execution in between
// until the model answers without requesting tools.
func (l *Loop) Run(ctx context.Context, in TurnInput) (*TurnResult, error) {
	messages := convertHistory(in.History)
	var specs []ToolSpec
	if in.Registry != nil {
		specs = in.Registry.Specs()
	}

	result := &TurnResult{}

	for round := 1; round <= MaxToolRounds; round++ {
		result.Rounds = round

		completion, err := l.complete(ctx, &CompletionRequest{
			Model:     l.model,
			System:    in.System,
			Messages:  messages,
			Tools:     specs,
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		if len(completion.ToolCalls) == 0 {
			result.FinalReply = ParseFinalReply(completion.Text)
			return result, nil
		}

		toolResults := make([]models.ToolResult, 0, len(completion.ToolCalls))
		for _, call := range completion.ToolCalls {
			res := l.executeTool(ctx, in.Registry, call)
			toolResults = append(toolResults, models.ToolResult{
				ToolCallID: call.ID,
				Content:    res.Content,
				IsError:    res.IsError,
			})
			result.ToolRecords = append(result.ToolRecords, FormatRecord(call.Name, res))
			result.ToolOutcomes = append(result.ToolOutcomes, ToolOutcome{
				Name:    call.Name,
				Content: res.Content,
				IsError: res.IsError,
				ErrKind: res.ErrKind,
			})
		}

		messages = append(messages,
			CompletionMessage{Role: "assistant", Content: completion.Text, ToolCalls: completion.ToolCalls},
			CompletionMessage{Role: "user", ToolResults: toolResults},
		)
	}

	return nil, fmt.Errorf("turn exceeded %d tool rounds", MaxToolRounds)
}

func (l *Loop) complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	start := time.Now()
	completion, err := retry.DoWithValue(ctx, retry.ModelConfig(), func() (*Completion, error) {
		// Each attempt gets its own timeout; the outer ctx still bounds the
		// whole turn.
		callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
		return l.provider.Complete(callCtx, req)
	})

	if l.metrics != nil {
		l.metrics.ModelRequestDuration.WithLabelValues(l.provider.Name(), req.Model).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		l.metrics.ModelRequests.WithLabelValues(l.provider.Name(), status).Inc()
	}
	if err != nil {
		l.logger.Error("model request failed", "provider", l.provider.Name(), "error", err)
		return nil, err
	}
	return completion, nil
}

func (l *Loop) executeTool(ctx context.Context, registry *ToolRegistry, call models.ToolCall) *ToolResult {
	start := time.Now()

	var res *ToolResult
	if registry == nil {
		res = &ToolResult{Content: "tool not found: " + call.Name, IsError: true, ErrKind: "unknown_tool"}
	} else {
		var err error
		res, err = registry.Execute(ctx, call.Name, call.Input)
		if err != nil {
			res = &ToolResult{Content: "tool failed: " + err.Error(), IsError: true, ErrKind: "internal"}
		}
	}

	if l.metrics != nil {
		status := "ok"
		if res.IsError {
			status = "error"
		}
		l.metrics.ToolExecutions.WithLabelValues(call.Name, status).Inc()
		l.metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}
	if res.IsError {
		l.logger.Warn("tool returned error", "tool", call.Name, "kind", res.ErrKind)
	}
	return res
}

// convertHistory maps stored session messages to provider messages. Tool
// records and system markers are folded into user-role messages; consecutive
// same-role messages are merged because providers require alternating roles.
func convertHistory(history []models.Message) []CompletionMessage {
	var out []CompletionMessage
	for _, msg := range history {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "assistant"
		}
		content := msg.Content

		if n := len(out); n > 0 && out[n-1].Role == role &&
			len(out[n-1].ToolCalls) == 0 && len(out[n-1].ToolResults) == 0 {
			out[n-1].Content += "\n" + content
			continue
		}
		out = append(out, CompletionMessage{Role: role, Content: content})
	}
	return out
}
