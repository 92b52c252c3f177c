package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/regdesk/regdesk/pkg/models"
)

// scriptedProvider returns canned completions in order.
type scriptedProvider struct {
	completions []*Completion
	errs        []error
	calls       int
	requests    []*CompletionRequest
	deadlines   []time.Time
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	if deadline, ok := ctx.Deadline(); ok {
		s.deadlines = append(s.deadlines, deadline)
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.completions) {
		return s.completions[i], nil
	}
	return &Completion{Text: `{"agent_final_response": "done", "routine_number": 1}`}, nil
}

func TestLoopPlainReply(t *testing.T) {
	provider := &scriptedProvider{completions: []*Completion{
		{Text: `{"agent_final_response": "What's your name?", "routine_number": 1}`},
	}}
	loop := NewLoop(LoopConfig{Provider: provider})

	res, err := loop.Run(context.Background(), TurnInput{
		Agent:   models.AgentNewRegistration,
		System:  "instructions",
		History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Reply != "What's your name?" || res.RoutineNumber != 1 {
		t.Fatalf("unexpected reply: %+v", res.FinalReply)
	}
	if res.Rounds != 1 {
		t.Fatalf("Rounds = %d, want 1", res.Rounds)
	}
}

func TestLoopExecutesToolsThenReplies(t *testing.T) {
	provider := &scriptedProvider{completions: []*Completion{
		{ToolCalls: []models.ToolCall{{ID: "t1", Name: "echo", Input: json.RawMessage(`{"value": "x"}`)}}},
		{Text: `{"agent_final_response": "validated", "routine_number": 3}`},
	}}
	registry := NewToolRegistry()
	registry.MustRegister(&echoTool{name: "echo"})
	loop := NewLoop(LoopConfig{Provider: provider})

	res, err := loop.Run(context.Background(), TurnInput{
		History:  []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Rounds != 2 {
		t.Fatalf("Rounds = %d, want 2", res.Rounds)
	}
	if len(res.ToolRecords) != 1 || len(res.ToolOutcomes) != 1 {
		t.Fatalf("tool records = %v, outcomes = %v", res.ToolRecords, res.ToolOutcomes)
	}
	if res.ToolOutcomes[0].Name != "echo" || res.ToolOutcomes[0].IsError {
		t.Fatalf("unexpected outcome: %+v", res.ToolOutcomes[0])
	}

	// Second request must carry the tool exchange back to the model.
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.ToolResults) != 1 || last.ToolResults[0].ToolCallID != "t1" {
		t.Fatalf("tool results not threaded: %+v", last)
	}
}

func TestLoopToolRoundLimit(t *testing.T) {
	toolCall := &Completion{ToolCalls: []models.ToolCall{{ID: "t", Name: "echo", Input: json.RawMessage(`{"value": "x"}`)}}}
	completions := make([]*Completion, MaxToolRounds+2)
	for i := range completions {
		completions[i] = toolCall
	}
	provider := &scriptedProvider{completions: completions}
	registry := NewToolRegistry()
	registry.MustRegister(&echoTool{name: "echo"})
	loop := NewLoop(LoopConfig{Provider: provider})

	_, err := loop.Run(context.Background(), TurnInput{
		History:  []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Registry: registry,
	})
	if err == nil {
		t.Fatal("Run() must fail when the model never stops calling tools")
	}
	if provider.calls != MaxToolRounds {
		t.Fatalf("provider calls = %d, want %d", provider.calls, MaxToolRounds)
	}
}

func TestLoopRetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{errors.New("anthropic: status 503")},
		completions: []*Completion{
			nil,
			{Text: `{"agent_final_response": "recovered", "routine_number": 1}`},
		},
	}
	loop := NewLoop(LoopConfig{Provider: provider})

	res, err := loop.Run(context.Background(), TurnInput{
		History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Reply != "recovered" {
		t.Fatalf("Reply = %q", res.Reply)
	}
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
	// Each attempt must run under its own call deadline, not a shared one.
	if len(provider.deadlines) != 2 {
		t.Fatalf("deadlines = %d, want 2", len(provider.deadlines))
	}
	if !provider.deadlines[1].After(provider.deadlines[0]) {
		t.Fatalf("retry reused the first attempt's deadline: %v", provider.deadlines)
	}
}

func TestConvertHistoryMergesConsecutiveRoles(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleSystem, Content: models.MarkerAgentTransition},
		{Role: models.RoleAssistant, Content: "hi"},
		{Role: models.RoleTool, Content: "tool=echo status=ok"},
		{Role: models.RoleUser, Content: "next"},
	}
	out := convertHistory(history)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(out), out)
	}
	if out[0].Role != "user" || out[1].Role != "assistant" || out[2].Role != "user" {
		t.Fatalf("roles = %s/%s/%s", out[0].Role, out[1].Role, out[2].Role)
	}
}
